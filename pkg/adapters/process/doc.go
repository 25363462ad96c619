// Package process provides a ports.Dispatcher that hands submissions to a local
// command. It serves engines reachable only through a CLI and scripted test setups.
package process
