// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package display

const (
	Tool   = "ralphstack"
	Banner = `
           _       _         _             _    
 _ __ __ _| |_ __ | |__  ___| |_ __ _  ___| | __
| '__/ _' | | '_ \| '_ \/ __| __/ _' |/ __| |/ /
| | | (_| | | |_) | | | \__ \ || (_| | (__|   < 
|_|  \__,_|_| .__/|_| |_|___/\__\__,_|\___|_|\_\
            |_|                          vversion
`
	CodeRoot = "https://github.com/resuralph/ralphstack"
)
