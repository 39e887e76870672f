// Package logx is skeddy's structured logging, a thin layer over zerolog.
//
// Components take a Logger value and derive their own with With
// (comp=scheduler, comp=bot, ...). The process Service renders the console
// for humans and writes JSON lines to the optional file; both can be switched
// on config reload.
package logx
