package main

import (
	"github.com/Carmen-Shannon/oxy-render/log"
	"github.com/urfave/cli"
)

var logger = log.New("oxy-render")

// setupLogging applies the configured level and format; -v and -vv override the level.
func setupLogging(ctx *cli.Context, level, format string) {
	if format != "" {
		log.SetFormat(log.ParseFormat(format))
	}
	if level != "" {
		log.SetLevel(log.ParseLevel(level))
	}

	if ctx.GlobalBool("v") {
		log.SetLevel(log.Info)
	}

	if ctx.GlobalBool("vv") {
		log.SetLevel(log.Debug)
	}
}
