package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/vthunder/steward/internal/bridge"
	"github.com/vthunder/steward/internal/dispatch"
	"github.com/vthunder/steward/internal/effectors"
	"github.com/vthunder/steward/internal/reflex"
)

var (
	assistantColor = color.New(color.FgCyan)
	promptColor    = color.New(color.FgYellow, color.Bold)
	errorColor     = color.New(color.FgRed)
	dimColor       = color.New(color.Faint)
)

// console is the terminal stand-in for the chat UI: it prints replies and
// answers confirmation prompts from stdin while a turn runs
type console struct {
	out       io.Writer
	lines     <-chan string
	confirmer *effectors.Confirmer
}

func newConsole(in io.Reader, out io.Writer, bridges *bridge.Bridges, quick *reflex.Engine) *console {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	c := &console{out: out, lines: lines}
	c.confirmer = effectors.NewConfirmer(bridges, quick, func(text string) error {
		promptColor.Fprintln(out, text)
		return nil
	})
	return c
}

// run starts the confirmer and waits for turn, routing stdin lines to any
// open prompt meanwhile
func (c *console) run(ctx context.Context, turn func(ctx context.Context) (*dispatch.TurnResult, error)) (*dispatch.TurnResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	confirmDone := make(chan struct{})
	go func() {
		c.confirmer.Run(ctx)
		close(confirmDone)
	}()
	defer func() {
		cancel()
		<-confirmDone
	}()

	type outcome struct {
		res *dispatch.TurnResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := turn(ctx)
		done <- outcome{res, err}
	}()

	lines := c.lines
	for {
		select {
		case o := <-done:
			if o.err == nil {
				c.printResult(o.res)
			}
			return o.res, o.err
		case line, ok := <-lines:
			if !ok {
				// stdin closed; open prompts fall back on timeout
				lines = nil
				continue
			}
			if !c.confirmer.HandleReply(line) {
				dimColor.Fprintln(c.out, "(still working)")
			}
		}
	}
}

// chat reads messages until stdin closes
func (c *console) chat(ctx context.Context, handle func(ctx context.Context, text string) (*dispatch.TurnResult, error)) error {
	for {
		fmt.Fprint(c.out, "> ")
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-c.lines:
			if !ok {
				fmt.Fprintln(c.out)
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}
		if _, err := c.run(ctx, func(ctx context.Context) (*dispatch.TurnResult, error) {
			return handle(ctx, line)
		}); err != nil {
			errorColor.Fprintf(c.out, "error: %v\n", err)
		}
	}
}

func (c *console) printResult(res *dispatch.TurnResult) {
	if res.ParseError != nil {
		errorColor.Fprintf(c.out, "could not parse actions: %v\n", res.ParseError)
		return
	}
	for _, m := range res.Messages {
		assistantColor.Fprintln(c.out, m)
	}
	if res.State == dispatch.StatePaused {
		dimColor.Fprintln(c.out, "(waiting for your answer)")
	}
}
