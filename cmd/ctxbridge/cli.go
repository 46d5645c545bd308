package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/ctxbridge/internal/capture"
	"github.com/hpungsan/ctxbridge/internal/clip"
	"github.com/hpungsan/ctxbridge/internal/errors"
	"github.com/hpungsan/ctxbridge/internal/llm"
	"github.com/hpungsan/ctxbridge/internal/mcp"
	"github.com/hpungsan/ctxbridge/internal/ops"
	"github.com/hpungsan/ctxbridge/internal/settings"
	"github.com/hpungsan/ctxbridge/internal/synth"
	"github.com/hpungsan/ctxbridge/internal/web"
)

// maxStdinBytes bounds piped input. Page captures carry whole documents.
const maxStdinBytes = 8 << 20

// newCLIApp creates the CLI application with all commands.
func newCLIApp(svc *services) *cli.App {
	app := &cli.App{
		Name:    "ctxbridge",
		Usage:   "Clip, stage and synthesize context for LLMs",
		Version: Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Usage: "Log at debug level"},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") && svc != nil && svc.level != nil {
				svc.level.Set(slog.LevelDebug)
			}
			return nil
		},
		Commands: []*cli.Command{
			captureCmd(svc),
			listCmd(svc),
			showCmd(svc),
			editCmd(svc),
			deleteCmd(svc),
			archiveCmd(svc),
			restoreCmd(svc),
			reorderCmd(svc),
			clearCmd(svc),
			synthesizeCmd(svc),
			exportCmd(svc),
			templatesCmd(svc),
			promptsCmd(svc),
			settingsCmd(svc),
			watchCmd(svc),
			serveCmd(svc),
			mcpCmd(svc),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// captureCmd creates the capture command.
func captureCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "capture",
		Usage: "Capture a clip into staging (reads content from stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "selection", Usage: "selection|page|adapter"},
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Value: "text", Usage: "Selection clip type: text|code"},
			&cli.BoolFlag{Name: "html", Usage: "Stdin is HTML (converted to Markdown)"},
			&cli.StringFlag{Name: "url", Aliases: []string{"u"}, Usage: "Source URL"},
			&cli.StringFlag{Name: "title", Usage: "Source title"},
		},
		Action: func(c *cli.Context) error {
			if !stdinHasData() {
				return outputError(errors.NewValidation("content must be piped via stdin"))
			}
			body, err := readStdin(maxStdinBytes)
			if err != nil {
				return outputError(err)
			}

			ctx := c.Context
			var res *capture.Result
			switch c.String("mode") {
			case "selection":
				in := capture.SelectionInput{
					Type:  clip.Type(c.String("type")),
					URL:   c.String("url"),
					Title: c.String("title"),
				}
				if c.Bool("html") {
					in.HTML = body
				} else {
					in.Text = body
				}
				res, err = svc.producer.CaptureSelection(ctx, in)
			case "page":
				res, err = svc.producer.CapturePage(ctx, capture.PageInput{
					HTML:  body,
					URL:   c.String("url"),
					Title: c.String("title"),
				})
			case "adapter":
				res, err = svc.producer.CaptureAdapter(ctx, capture.Payload{
					URL:   c.String("url"),
					Title: c.String("title"),
					HTML:  body,
				})
			default:
				return outputError(errors.NewValidation(fmt.Sprintf("unknown capture mode %q", c.String("mode"))))
			}
			if err != nil {
				return outputError(err)
			}
			return outputJSON(res)
		},
	}
}

// listCmd creates the list command.
func listCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List clips in collection order",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "Filter: staging|archived"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Max results"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Pagination offset"},
		},
		Action: func(c *cli.Context) error {
			output, err := svc.repo.List(ops.ListInput{
				Status: c.String("status"),
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// showCmd creates the show command.
func showCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show a clip with its full content",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "raw", Usage: "Print only the Markdown content"},
		},
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, "id")
			if err != nil {
				return outputError(err)
			}
			it, err := svc.repo.Get(id)
			if err != nil {
				return outputError(err)
			}
			if c.Bool("raw") {
				_, err := fmt.Fprintln(os.Stdout, it.Content)
				return err
			}
			return outputJSON(it)
		},
	}
}

// editCmd creates the edit command.
func editCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:      "edit",
		Usage:     "Replace a clip's content (reads content from stdin)",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, "id")
			if err != nil {
				return outputError(err)
			}
			if !stdinHasData() {
				return outputError(errors.NewValidation("content must be piped via stdin"))
			}
			content, err := readStdin(maxStdinBytes)
			if err != nil {
				return outputError(err)
			}
			it, err := svc.repo.UpdateContent(c.Context, id, content)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(ops.Summarize(it))
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Permanently delete clips",
		ArgsUsage: "<id>...",
		Action: func(c *cli.Context) error {
			ids, err := requireIDs(c)
			if err != nil {
				return outputError(err)
			}
			n, err := svc.repo.DeleteMany(c.Context, ids)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]int{"deleted": n})
		},
	}
}

// archiveCmd creates the archive command.
func archiveCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:      "archive",
		Usage:     "Move clips from staging to the archive",
		ArgsUsage: "<id>...",
		Action: func(c *cli.Context) error {
			ids, err := requireIDs(c)
			if err != nil {
				return outputError(err)
			}
			n, err := svc.repo.Archive(c.Context, ids)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]int{"archived": n})
		},
	}
}

// restoreCmd creates the restore command.
func restoreCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Usage:     "Move an archived clip back to staging",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, "id")
			if err != nil {
				return outputError(err)
			}
			if err := svc.repo.Restore(c.Context, id); err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"id": id, "status": clip.StatusStaging})
		},
	}
}

// reorderCmd creates the reorder command.
func reorderCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:      "reorder",
		Usage:     "Set the staging order",
		ArgsUsage: "<id>...",
		Action: func(c *cli.Context) error {
			ids, err := requireIDs(c)
			if err != nil {
				return outputError(err)
			}
			if err := svc.repo.ReorderStaging(c.Context, ids); err != nil {
				return outputError(err)
			}
			return outputJSON(map[string][]string{"staging": clip.IDs(svc.repo.Staging())})
		},
	}
}

// clearCmd creates the clear command.
func clearCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Delete every clip",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Required; clearing cannot be undone"},
		},
		Action: func(c *cli.Context) error {
			if !c.Bool("force") {
				return outputError(errors.NewValidation("clear deletes every clip; pass --force"))
			}
			n, err := svc.repo.Clear(c.Context)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]int{"deleted": n})
		},
	}
}

// synthesizeCmd creates the synthesize command.
func synthesizeCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "synthesize",
		Usage: "Join or AI Refine staged clips (preview unless --confirm)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "strategy", Aliases: []string{"s"}, Value: string(synth.StrategyJoin), Usage: "join|ai_refine"},
			&cli.StringFlag{Name: "ids", Usage: "Comma-separated clip ids (default: all of staging)"},
			&cli.StringFlag{Name: "template", Usage: "Join template id"},
			&cli.StringFlag{Name: "prompt", Usage: "AI Refine preset prompt id"},
			&cli.StringFlag{Name: "instruction", Usage: "AI Refine custom instruction"},
			&cli.BoolFlag{Name: "confirm", Usage: "Save the result and archive the sources"},
		},
		Action: func(c *cli.Context) error {
			sess := synth.NewSession(svc.engine, svc.logger)
			out, err := synth.Run(c.Context, sess, svc.settings, svc.repo, synth.Request{
				Strategy:    synth.Strategy(c.String("strategy")),
				IDs:         parseList(c.String("ids")),
				TemplateID:  c.String("template"),
				PromptID:    c.String("prompt"),
				Instruction: c.String("instruction"),
				Confirm:     c.Bool("confirm"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(out)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export clips to a Markdown file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Output path (default: ~/.ctxbridge/exports/<status>-<timestamp>.md)"},
			&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "Partition: staging|archived"},
			&cli.StringFlag{Name: "ids", Usage: "Comma-separated clip ids, exported in that order"},
		},
		Action: func(c *cli.Context) error {
			output, err := svc.repo.Export(c.Context, ops.ExportInput{
				Path:   c.String("path"),
				IDs:    parseList(c.String("ids")),
				Status: c.String("status"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// templatesCmd creates the templates command group.
func templatesCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "templates",
		Usage: "Manage Join templates",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List templates",
				Action: func(c *cli.Context) error {
					templates, err := svc.settings.Templates(c.Context)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(templates)
				},
			},
			{
				Name:  "add",
				Usage: "Add a template (reads content from stdin)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true, Usage: "Template name"},
				},
				Action: func(c *cli.Context) error {
					if !stdinHasData() {
						return outputError(errors.NewValidation("template content must be piped via stdin"))
					}
					content, err := readStdin(maxStdinBytes)
					if err != nil {
						return outputError(err)
					}
					t, err := svc.settings.AddTemplate(c.Context, c.String("name"), content)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(t)
				},
			},
			{
				Name:      "remove",
				Usage:     "Remove a template",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id, err := requireArg(c, "id")
					if err != nil {
						return outputError(err)
					}
					if err := svc.settings.RemoveTemplate(c.Context, id); err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{"id": id, "removed": true})
				},
			},
			{
				Name:  "import",
				Usage: "Import a YAML template pack",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Pack path (.yaml or .yml)"},
				},
				Action: func(c *cli.Context) error {
					path := c.String("path")
					if err := ops.ValidatePath(path, ops.TemplateImportRule(svc.baseDir), svc.cfg); err != nil {
						return outputError(err)
					}
					f, err := ops.OpenFileNoFollowRead(path)
					if err != nil {
						return outputError(err)
					}
					defer f.Close()

					result, err := svc.settings.ImportTemplates(c.Context, f)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(result)
				},
			},
		},
	}
}

// promptsCmd creates the prompts command.
func promptsCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "prompts",
		Usage: "Manage AI Refine preset prompts (lists them by default)",
		Action: func(c *cli.Context) error {
			prompts, err := svc.settings.Prompts(c.Context)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(prompts)
		},
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Add a preset prompt (reads the instruction from stdin)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true, Usage: "Prompt name"},
				},
				Action: func(c *cli.Context) error {
					if !stdinHasData() {
						return outputError(errors.NewValidation("prompt text must be piped via stdin"))
					}
					text, err := readStdin(maxStdinBytes)
					if err != nil {
						return outputError(err)
					}
					p, err := svc.settings.AddPrompt(c.Context, c.String("name"), text)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(p)
				},
			},
			{
				Name:      "remove",
				Usage:     "Remove a preset prompt",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id, err := requireArg(c, "id")
					if err != nil {
						return outputError(err)
					}
					if err := svc.settings.RemovePrompt(c.Context, id); err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{"id": id, "removed": true})
				},
			},
		},
	}
}

// settingsCmd creates the settings command group.
func settingsCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Read and write settings",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "Show every setting (the API key is masked)",
				Action: func(c *cli.Context) error {
					out := make(map[string]string, len(settings.Keys()))
					for _, key := range settings.Keys() {
						v, err := svc.settings.Get(c.Context, key)
						if err != nil {
							return outputError(err)
						}
						out[key] = v
					}
					return outputJSON(out)
				},
			},
			{
				Name:      "get",
				Usage:     "Show one setting",
				ArgsUsage: "<key>",
				Action: func(c *cli.Context) error {
					key, err := requireArg(c, "key")
					if err != nil {
						return outputError(err)
					}
					v, err := svc.settings.Get(c.Context, key)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]string{key: v})
				},
			},
			{
				Name:  "check",
				Usage: "Verify the text-generation key against the configured endpoint",
				Action: func(c *cli.Context) error {
					o, err := svc.settings.OpenAI(c.Context)
					if err != nil {
						return outputError(err)
					}
					if !o.Configured() {
						return outputError(errors.NewValidation("openai_api_key is not set"))
					}
					cfg := o.LLMConfig()
					cfg.Timeout = svc.cfg.AITimeout()
					client, err := llm.New(cfg)
					if err != nil {
						return outputError(errors.NewValidation(err.Error()))
					}
					if err := client.Ping(c.Context); err != nil {
						return outputError(errors.NewSynthesis(err))
					}
					return outputJSON(map[string]any{"ok": true, "model": client.Model()})
				},
			},
			{
				Name:      "set",
				Usage:     "Change one setting",
				ArgsUsage: "<key> <value>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 2 {
						return outputError(errors.NewValidation("usage: settings set <key> <value>"))
					}
					key := c.Args().Get(0)
					if err := svc.settings.Set(c.Context, key, c.Args().Get(1)); err != nil {
						return outputError(err)
					}
					v, err := svc.settings.Get(c.Context, key)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]string{key: v})
				},
			},
		},
	}
}

// changeLine is one line of watch output.
type changeLine struct {
	Staging  []string `json:"staging"`
	Archived int      `json:"archived"`
	Tokens   int      `json:"tokens"`
}

func newChangeLine(items []clip.Item) changeLine {
	staging := clip.Staging(items)
	return changeLine{
		Staging:  clip.IDs(staging),
		Archived: len(items) - len(staging),
		Tokens:   clip.TotalTokens(staging),
	}
}

// watchCmd creates the watch command.
func watchCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Print a JSON line whenever the clips change, from any surface",
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			lines := make(chan changeLine, 16)
			unsubscribe := svc.repo.OnChange(func(items []clip.Item) {
				select {
				case lines <- newChangeLine(items):
				default:
					svc.logger.Warn("watch output is behind, dropping a change")
				}
			})
			defer unsubscribe()

			enc := json.NewEncoder(os.Stdout)
			if err := enc.Encode(newChangeLine(svc.repo.Clips())); err != nil {
				return err
			}
			for {
				select {
				case <-ctx.Done():
					return nil
				case line := <-lines:
					if err := enc.Encode(line); err != nil {
						return err
					}
				}
			}
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the side panel HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 7777, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			s := web.New(svc.webDeps(), svc.cfg, Version)
			defer s.Close()
			return web.Run(web.NewHTTPServer(s, c.String("bind"), c.Int("port")), svc.logger)
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Run the MCP server on stdio",
		Action: func(c *cli.Context) error {
			return mcp.Run(svc.mcpDeps(), svc.cfg, Version)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if be, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", be.Code, be.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

func requireArg(c *cli.Context, name string) (string, error) {
	if c.NArg() < 1 || strings.TrimSpace(c.Args().First()) == "" {
		return "", errors.NewValidation(name + " is required")
	}
	return c.Args().First(), nil
}

// requireIDs collects positional ids; each may itself be comma-separated.
func requireIDs(c *cli.Context) ([]string, error) {
	var ids []string
	for _, arg := range c.Args().Slice() {
		ids = append(ids, parseList(arg)...)
	}
	if len(ids) == 0 {
		return nil, errors.NewValidation("at least one id is required")
	}
	return ids, nil
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads at most limit bytes from stdin.
func readStdin(limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, limit+1))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if int64(len(data)) > limit {
		return "", errors.NewValidation(fmt.Sprintf("stdin exceeds %d bytes", limit))
	}
	return strings.TrimSpace(string(data)), nil
}

// parseList splits a comma-separated string, dropping empty entries.
func parseList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
