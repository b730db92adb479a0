// registryctl — администрирование реестра бота вне процесса бота.
//
// При драйвере badger утилита не запустится, пока бот держит базу открытой.
// При драйвере file изменения нужно вносить при остановленном боте, иначе
// бот перезапишет файл при следующем событии.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/xerrors"

	"telegram-relay-bot/cmd/bot/config"
	"telegram-relay-bot/internal/adapters/exporter"
	"telegram-relay-bot/internal/bot"
	"telegram-relay-bot/internal/core/services"
	"telegram-relay-bot/internal/domain"
	"telegram-relay-bot/internal/pkg/term"
	"telegram-relay-bot/internal/ports"
	"telegram-relay-bot/internal/registry"
)

const usage = `Usage: registryctl [global flags] <command> [flags]

Commands:
  list                              print admins and chats
  add-admin -id ID [-name N]        add an admin or rename an existing one
  remove-admin -id ID [-yes]        remove an admin (asks for confirmation)
  add-chat -id CHAT_ID [-name N] [-authorized]
                                    add a chat by hand (unauthorized by default)
  rename-chat -id CHAT_ID -name N   change the display name of a known chat
  authorize -id CHAT_ID             mark a known chat as authorized
  deauthorize -id CHAT_ID           mark a known chat as unauthorized
  reconcile                         check every known chat via Bot API and update flags
  stats [-log FILE]                 count forwarded messages and errors in the bot log
  export -out FILE.xlsx             export the registry to Excel

Global flags:
`

// defaultLogFile совпадает с файлом журнала бота в режиме -daemon.
const defaultLogFile = "relay-bot.log"

// errUsage означает неверные аргументы командной строки.
var errUsage = errors.New("invalid usage")

// prompter — подтверждение опасных операций.
type prompter interface {
	Confirm(question string) (bool, error)
}

// newProbe создает проверку членства поверх Bot API.
var newProbe = func(cfg *config.Config, logger *slog.Logger) (ports.MembershipProbe, error) {
	api, err := bot.NewAPI(cfg.Bot.Token, "", cfg.APITimeout())
	if err != nil {
		return nil, err
	}
	return bot.NewTransport(api, api.Self.ID, logger), nil
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr, term.NewTerminal()); err != nil {
		fmt.Fprintf(os.Stderr, "registryctl: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, prompt prompter) error {
	global := flag.NewFlagSet("registryctl", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() {
		fmt.Fprint(stderr, usage)
		global.PrintDefaults()
	}
	configPath := global.String("config", config.DefaultConfigFile, "path to bot config")
	driver := global.String("driver", "", "registry driver override (file, badger)")
	path := global.String("path", "", "registry path override")
	if err := global.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if global.NArg() == 0 {
		global.Usage()
		return errUsage
	}

	cmd, cmdArgs := global.Arg(0), global.Args()[1:]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	id := fs.String("id", "", "admin or chat id")
	name := fs.String("name", "", "admin or chat name")
	yes := fs.Bool("yes", false, "do not ask for confirmation")
	authorized := fs.Bool("authorized", false, "add-chat: mark the new chat as authorized")
	out := fs.String("out", "", "output file")
	logFile := fs.String("log", defaultLogFile, "stats: bot log file")
	if err := fs.Parse(cmdArgs); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	// stats читает только журнал и не открывает реестр
	if cmd == "stats" {
		return printStats(*logFile, stdout)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *driver != "" {
		cfg.Registry.Driver = *driver
	}
	if *path != "" {
		cfg.Registry.Path = *path
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	store, closer, err := registry.Open(cfg.Registry.Driver, cfg.Registry.Path, logger)
	if err != nil {
		return xerrors.Errorf("failed to open registry (is the bot running?): %w", err)
	}
	defer closer.Close()

	reg, err := store.Load(ctx)
	if err != nil {
		return err
	}

	requireID := func() error {
		if strings.TrimSpace(*id) == "" {
			return fmt.Errorf("%w: %s requires -id", errUsage, cmd)
		}
		return nil
	}

	var next domain.Registry
	switch cmd {
	case "list":
		return exporter.NewConsoleExporter(stdout).Export(reg)

	case "export":
		if *out == "" {
			return fmt.Errorf("%w: export requires -out", errUsage)
		}
		return exportExcel(*out, reg)

	case "add-admin":
		if err := requireID(); err != nil {
			return err
		}
		next = reg.WithAdmin(domain.Admin{ID: *id, Name: *name})

	case "remove-admin":
		if err := requireID(); err != nil {
			return err
		}
		var ok bool
		if next, ok = reg.WithoutAdmin(*id); !ok {
			return fmt.Errorf("admin %s not found", *id)
		}
		if len(next.Admins) == 0 {
			fmt.Fprintln(stderr, "warning: no admins will remain, nobody will be able to broadcast")
		}
		if !*yes {
			confirmed, err := prompt.Confirm(fmt.Sprintf("Remove admin %s?", *id))
			if err != nil {
				return err
			}
			if !confirmed {
				fmt.Fprintln(stdout, "Aborted.")
				return nil
			}
		}

	case "add-chat":
		if err := requireID(); err != nil {
			return err
		}
		var ok bool
		chat := domain.Chat{ID: *id, Name: domain.ChatLabel(*id, *name), Authorized: *authorized}
		if next, ok = reg.WithChat(chat); !ok {
			return fmt.Errorf("chat %s is already known to the registry", *id)
		}

	case "rename-chat":
		if err := requireID(); err != nil {
			return err
		}
		if strings.TrimSpace(*name) == "" {
			return fmt.Errorf("%w: rename-chat requires -name", errUsage)
		}
		var ok bool
		if next, ok = reg.WithChatName(*id, *name); !ok {
			return fmt.Errorf("chat %s is not known to the registry", *id)
		}

	case "authorize", "deauthorize":
		if err := requireID(); err != nil {
			return err
		}
		var ok bool
		if next, ok = reg.WithAuthorized(*id, cmd == "authorize"); !ok {
			return fmt.Errorf("chat %s is not known to the registry", *id)
		}

	case "reconcile":
		if cfg.Bot.Token == "" {
			return fmt.Errorf("reconcile requires bot.token or TG_BOT_TOKEN")
		}
		probe, err := newProbe(cfg, logger)
		if err != nil {
			return err
		}
		reconciler := services.NewReconciliationService(probe,
			services.WithProbeConcurrency(cfg.Updates.ProbeConcurrency),
			services.WithProbeTimeout(cfg.ProbeTimeout()),
			services.WithReconcileLogger(logger),
		)
		var report services.ReconcileReport
		next, report = reconciler.ReconcileFull(ctx, reg)
		fmt.Fprintf(stdout, "checked %d chats: %d authorized, %d unauthorized, %d probe failures\n",
			report.Checked, report.Authorized, report.Deauthorized, report.ProbeFailures)

	default:
		global.Usage()
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}

	if err := store.Save(ctx, next); err != nil {
		return err
	}
	if *id == "" {
		fmt.Fprintf(stdout, "%s: done\n", cmd)
	} else {
		fmt.Fprintf(stdout, "%s %s: done\n", cmd, *id)
	}
	return nil
}

func exportExcel(path string, reg domain.Registry) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return xerrors.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return exporter.NewExcelExporter(f).Export(reg)
}
