// Command agent is the CLI entrypoint for the local coding-agent kernel.
//
// Usage:
//
//	agent run "add input validation to the login handler"
//	agent chat
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/localcoder/agentkernel/internal/apperrors"
	"github.com/localcoder/agentkernel/internal/config"
	"github.com/localcoder/agentkernel/internal/conversation"
	"github.com/localcoder/agentkernel/internal/editor"
	"github.com/localcoder/agentkernel/internal/intent"
	"github.com/localcoder/agentkernel/internal/kernel"
	"github.com/localcoder/agentkernel/internal/llm"
	"github.com/localcoder/agentkernel/internal/orchestrator"
	"github.com/localcoder/agentkernel/internal/planner"
	"github.com/localcoder/agentkernel/internal/projectctx"
	"github.com/localcoder/agentkernel/internal/tools"
	"github.com/localcoder/agentkernel/internal/tools/codeanalysis"
	"github.com/localcoder/agentkernel/internal/tools/execute"
	"github.com/localcoder/agentkernel/internal/tools/filesystem"
	"github.com/localcoder/agentkernel/internal/tools/git"
	"github.com/localcoder/agentkernel/internal/tools/search"
	"github.com/localcoder/agentkernel/internal/tools/testing"
)

// Exit codes per the CLI surface: 0 success, 1 user error, 2 validation,
// 3 tool failure, 130 cancelled.
const (
	exitSuccess    = 0
	exitUserError  = 1
	exitValidation = 2
	exitToolError  = 3
	exitCancelled  = 130
)

// CLI is the kong command tree.
type CLI struct {
	Run  RunCmd  `cmd:"" help:"Send a single message to the agent and print its response."`
	Chat ChatCmd `cmd:"" help:"Start an interactive chat session."`

	Config string `short:"c" help:"Path to config file." type:"path" default:"agent.yaml"`
	Root   string `help:"Project root directory." type:"path" default:"."`
}

// RunCmd sends one message and exits.
type RunCmd struct {
	Message []string `arg:"" help:"Message to send."`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, cancel := installSignalHandler()
	defer cancel()

	k, cleanup, err := buildKernel(cli)
	if err != nil {
		return err
	}
	defer cleanup()

	message := joinArgs(c.Message)
	turn, err := k.HandleMessage(ctx, message)
	if err != nil {
		return err
	}
	fmt.Println(turn.Response)
	return nil
}

// ChatCmd runs an interactive REPL over stdin/stdout.
type ChatCmd struct{}

func (c *ChatCmd) Run(cli *CLI) error {
	ctx, cancel := installSignalHandler()
	defer cancel()

	k, cleanup, err := buildKernel(cli)
	if err != nil {
		return err
	}
	defer cleanup()

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("agent ready. Ctrl+C to exit.")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return nil
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		turn, err := k.HandleMessage(ctx, line)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		fmt.Println(turn.Response)
	}
}

func joinArgs(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}

func installSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()
	return ctx, cancel
}

// buildKernel wires config -> tool registry -> orchestrator -> kernel,
// mirroring the teacher's config-then-runtime construction order.
func buildKernel(cli *CLI) (*kernel.Kernel, func(), error) {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, nil, err
	}

	index, err := projectctx.New(cli.Root)
	if err != nil {
		return nil, nil, err
	}

	reg := tools.NewRegistry()
	execTool := execute.New(mergeDenylist(cfg.Execute.DeniedCommands), cfg.Execute.WorkingDirectory, cfg.ToolTimeout)
	registerTool(reg, filesystem.New(), "filesystem", false)
	registerTool(reg, search.New(cfg.Search.MaxResults, cfg.Search.DefaultContextLines), "search", false)
	registerTool(reg, execTool, "execution", false)
	registerTool(reg, git.New(), "vcs", false)
	registerTool(reg, codeanalysis.New(), "analysis", false)
	registerTool(reg, testing.New(execTool), "testing", false)

	orch := orchestrator.New(reg, cfg.MaxConcurrentTools, 256, cfg.CacheTTL)
	ed := editor.New(cfg.Editor.BackupDir)

	llmClient := llm.New(cfg.BaseURL, cfg.Model)
	intentSvc := intent.New(llmClient)
	plannerSvc := planner.New(llmClient)

	conv := conversation.New()
	store := conversation.NewStore(cfg.DataDir)

	k := kernel.New(kernel.Deps{
		Config:       cfg,
		Conversation: conv,
		Store:        store,
		Index:        index,
		Registry:     reg,
		Orchestrator: orch,
		Editor:       ed,
		Intent:       intentSvc,
		Planner:      plannerSvc,
	})

	cleanup := func() {
		_ = index.Close()
	}
	return k, cleanup, nil
}

func mergeDenylist(extra []string) []string {
	return append(append([]string{}, config.DefaultDenylist...), extra...)
}

func registerTool(reg *tools.Registry, t tools.Tool, category string, internal bool) {
	if err := reg.Register(t, internal); err != nil {
		slog.Error("failed to register tool", "category", category, "error", err)
	}
}

func exitCodeFor(err error) int {
	if err == nil {
		return exitSuccess
	}
	if errors.Is(err, context.Canceled) {
		return exitCancelled
	}
	switch {
	case apperrors.IsKind(err, apperrors.KindValidation):
		return exitValidation
	case apperrors.IsKind(err, apperrors.KindCancelled):
		return exitCancelled
	case apperrors.IsKind(err, apperrors.KindTool), apperrors.IsKind(err, apperrors.KindTimeout),
		apperrors.IsKind(err, apperrors.KindIO), apperrors.IsKind(err, apperrors.KindSafety):
		return exitToolError
	default:
		return exitUserError
	}
}

func main() {
	cli := CLI{}
	kctx := kong.Parse(&cli,
		kong.Name("agent"),
		kong.Description("Local AI coding agent kernel"),
		kong.UsageOnError(),
	)

	err := kctx.Run(&cli)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(exitCodeFor(err))
}
