package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/dotsetgreg/dotmod/pkg/moderation"
)

type evaluateOptions struct {
	communityID string
	channelID   string
	authorID    string
	record      bool
	interactive bool
}

func (o evaluateOptions) message(content string) moderation.Message {
	return moderation.Message{
		CommunityID: o.communityID,
		ChannelID:   o.channelID,
		AuthorID:    o.authorID,
		Content:     content,
		Timestamp:   time.Now(),
	}
}

// evaluator runs messages through the configured engine. Without record the
// word memory is only read, so trial runs do not inflate history scores.
type evaluator struct {
	engine  *moderation.Engine
	weights moderation.ChannelWeights
	opts    evaluateOptions
}

func (e *evaluator) decide(ctx context.Context, content string) moderation.Decision {
	msg := e.opts.message(content)
	if e.opts.record {
		return e.engine.Process(ctx, msg, e.weights)
	}
	return e.engine.Evaluate(ctx, msg, e.weights)
}

func evaluateCmd(out io.Writer, opts evaluateOptions, content string) error {
	if !opts.interactive && strings.TrimSpace(content) == "" {
		return fmt.Errorf("a message is required (pass it as an argument or use --interactive)")
	}
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	memory, err := openMemory(cfg)
	if err != nil {
		return err
	}
	defer memory.Close()

	engine, err := moderation.NewEngineFromConfig(cfg, memory, nil)
	if err != nil {
		return err
	}
	ev := &evaluator{engine: engine, weights: cfg.ChannelRiskScore, opts: opts}

	if opts.interactive {
		interactiveMode(out, ev)
		return nil
	}
	return writeDecision(out, ev.decide(context.Background(), content))
}

func writeDecision(out io.Writer, d moderation.Decision) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

func summarizeDecision(d moderation.Decision) string {
	c := d.Context
	var b strings.Builder
	fmt.Fprintf(&b, "%s score=%d (base %d, format %d, history %d, channel %d, floor %d) risk=%s",
		d.Action, c.TotalScore, c.BaseScore, c.FormatScore, c.HistoryScore, c.ChannelScore, c.ClassifierFloor, c.RiskLevel)
	if c.MatchedKeyword != "" {
		fmt.Fprintf(&b, " keyword=%q", c.MatchedKeyword)
	}
	if c.BlockedPattern != "" {
		fmt.Fprintf(&b, " pattern=%q", c.BlockedPattern)
	}
	fmt.Fprintf(&b, "\n  %s", c.ReviewNote)
	return b.String()
}

func interactiveMode(out io.Writer, ev *evaluator) {
	prompt := fmt.Sprintf("%s> ", appName)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     filepath.Join(os.TempDir(), ".dotmod_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          out,
	})
	if err != nil {
		fmt.Fprintf(out, "Error initializing readline: %v\n", err)
		fmt.Fprintln(out, "Falling back to simple input mode...")
		simpleInteractiveMode(os.Stdin, out, ev)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Fprintln(out, "\nGoodbye!")
				return
			}
			fmt.Fprintf(out, "Error reading input: %v\n", err)
			continue
		}
		if !evaluateLine(out, ev, line) {
			return
		}
	}
}

func simpleInteractiveMode(in io.Reader, out io.Writer, ev *evaluator) {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "%s> ", appName)
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Fprintln(out, "\nGoodbye!")
				return
			}
			fmt.Fprintf(out, "Error reading input: %v\n", err)
			continue
		}
		if !evaluateLine(out, ev, line) {
			return
		}
	}
}

// evaluateLine reports false when the session should end.
func evaluateLine(out io.Writer, ev *evaluator, line string) bool {
	input := strings.TrimSpace(line)
	switch input {
	case "":
		return true
	case "exit", "quit":
		fmt.Fprintln(out, "Goodbye!")
		return false
	}
	d := ev.decide(context.Background(), input)
	fmt.Fprintf(out, "%s\n\n", summarizeDecision(d))
	return true
}
