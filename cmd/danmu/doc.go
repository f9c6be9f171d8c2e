// Command danmu is the command line client for the danmu daemon.
//
// It runs the daemon in the foreground, inspects and cancels jobs through the
// daemon's HTTP API, and submits every job kind the task service accepts.
package main
