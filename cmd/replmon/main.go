package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/replmon/replmon/agent"
	"github.com/replmon/replmon/internal/files"
	"github.com/replmon/replmon/parse"
	"github.com/replmon/replmon/session"
	"github.com/replmon/replmon/watch"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// projectMarkers are the files whose presence identifies a project root, used
// to pick a default working directory for the interpreter.
var projectMarkers = []string{"stack.yaml", "cabal.project", ".ghci"}

func main() {
	app := &cli.App{
		Name:  "replmon",
		Usage: "drive an interactive interpreter session, reloading on file changes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "command",
				Usage: "Shell command that launches the interpreter.",
				Value: "ghci",
			},
			&cli.StringFlag{
				Name:  "dir",
				Usage: "Working directory for the interpreter. Defaults to the nearest project root.",
			},
			&cli.StringSliceFlag{
				Name:  "watch",
				Usage: "Directory to watch for changes (repeatable). Defaults to the working directory.",
			},
			&cli.DurationFlag{
				Name:  "debounce",
				Usage: "Window in which file changes coalesce into one reload.",
				Value: 100 * time.Millisecond,
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log raw protocol lines.",
			},
		},
		Action: runWatch,
		Commands: []*cli.Command{
			{
				Name:  "agent",
				Usage: "serve interpreter sessions over WebSockets",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen-addr",
						Usage: "The address for the agent to listen on.",
						Value: "127.0.0.1:9777",
					},
					&cli.BoolFlag{
						Name:  "verbose",
						Usage: "Log agent activity.",
					},
				},
				Action: runAgent,
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func buildLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func runWatch(ctx *cli.Context) error {
	command := ctx.String("command")
	dir := ctx.String("dir")
	watchDirs := ctx.StringSlice("watch")
	debounce := ctx.Duration("debounce")
	verbose := ctx.Bool("verbose")

	logger, err := buildLogger(verbose)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	if dir == "" {
		dir, err = projectRoot()
		if err != nil {
			return err
		}
	}
	if len(watchDirs) == 0 {
		watchDirs = []string{dir}
	}

	sess, loads, err := session.Start(command,
		session.WithWorkingDir(dir),
		session.WithLogger(logger),
		session.WithVerbose(verbose),
		session.WithEcho(func(line string) { fmt.Println(line) }),
	)
	if err != nil {
		return err
	}
	defer sess.Stop()
	printLoads(loads)

	watcher, err := watch.New(watchDirs, debounce, logger)
	if err != nil {
		return err
	}
	defer watcher.Close()

	group := &errgroup.Group{}
	group.Go(func() error {
		for batch := range watcher.Changes() {
			fmt.Printf("changed: %s\n", strings.Join(batch, ", "))
			loads, err := sess.Reload()
			if err != nil {
				return err
			}
			printLoads(loads)
		}
		return nil
	})
	return group.Wait()
}

func runAgent(ctx *cli.Context) error {
	logger, err := buildLogger(ctx.Bool("verbose"))
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	server := agent.NewServer(
		agent.WithListenAddr(ctx.String("listen-addr")),
		agent.WithServerLogger(logger),
	)
	return server.Run()
}

// projectRoot picks the interpreter's working directory: the nearest ancestor
// holding a project marker file, or the current directory.
func projectRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for _, marker := range projectMarkers {
		found, err := files.FindUp(marker, wd)
		if err != nil {
			return "", err
		}
		if found != "" {
			return filepath.Dir(found), nil
		}
	}
	return wd, nil
}

func printLoads(loads []parse.Load) {
	for _, l := range loads {
		fmt.Printf("%s %s:%d:%d\n", l.Severity, l.File, l.Pos.Line, l.Pos.Col)
		for _, line := range l.Message {
			fmt.Println("  " + line)
		}
	}
	if len(loads) == 0 {
		fmt.Println("all good")
	}
}
