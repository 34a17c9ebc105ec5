package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/zulandar/procurebot/internal/config"
	"github.com/zulandar/procurebot/internal/logging"
	"github.com/zulandar/procurebot/internal/notify"
	"github.com/zulandar/procurebot/internal/watch"
	"gorm.io/gorm"
)

func newWatchCmd() *cobra.Command {
	var email, code, schedule string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a buyer's negotiations and notify on new and concluded ones",
		Long: "Polls the buyer's negotiation list on a cron schedule and reports negotiations\n" +
			"that were started or concluded since the last poll, on stdout and to the\n" +
			"Slack and Discord webhooks configured under notify.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, appOpts{})
			if err != nil {
				return err
			}
			defer a.Close()

			creds, err := credentials(cmd, email, code)
			if err != nil {
				return err
			}
			if schedule == "" {
				schedule = a.cfg.Watch.Schedule
			}
			notifier, err := buildNotifier(a.cfg.Notify)
			if err != nil {
				return err
			}
			var gdb *gorm.DB
			if a.store != nil {
				gdb = a.store.DB()
			}

			out := cmd.OutOrStdout()
			w, err := watch.New(watch.Opts{
				Lister:   a.api,
				Creds:    creds,
				Schedule: schedule,
				DB:       gdb,
				Notifier: notifier,
				OnEvent:  func(ev notify.Event) { printEvent(out, ev) },
				Origin:   a.cfg.Origin,
				Logger:   logging.Component("watch"),
			})
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd)
			defer cancel()
			fmt.Fprintf(out, "Watching negotiations of %s (%s)\n", creds.Email, schedule)
			return w.Run(ctx)
		},
	}

	addCredentialFlags(cmd, &email, &code)
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron schedule, 5 fields (default from config)")
	return cmd
}

// buildNotifier returns the configured webhooks, or nil when none is set.
func buildNotifier(cfg config.NotifyConfig) (notify.Notifier, error) {
	var all notify.Multi
	if cfg.SlackWebhookURL != "" {
		s, err := notify.NewSlack(notify.SlackOpts{WebhookURL: cfg.SlackWebhookURL})
		if err != nil {
			return nil, err
		}
		all = append(all, s)
	}
	if cfg.DiscordWebhookURL != "" {
		d, err := notify.NewDiscord(notify.DiscordOpts{WebhookURL: cfg.DiscordWebhookURL, Username: "ProcureBot"})
		if err != nil {
			return nil, err
		}
		all = append(all, d)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

func printEvent(out io.Writer, ev notify.Event) {
	verb := "started"
	if ev.Kind == notify.KindConcluded {
		verb = "concluded"
	}
	fmt.Fprintf(out, "%s  %s %q %s", ev.At.Format("2006-01-02 15:04"), ev.NegotiationID, ev.Name, verb)
	if ev.URL != "" {
		fmt.Fprintf(out, "  %s", ev.URL)
	}
	fmt.Fprintln(out)
}
