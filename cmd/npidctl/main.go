// Command npidctl is the NPID Gateway operations CLI. It talks to the
// legacy backend directly through the same adapter the gateway server
// uses.
//
// Usage:
//
//	npidctl login --force
//	npidctl validate
//	npidctl inbox list --limit 25 --filter unassigned
//	npidctl inbox detail --id message_id123 --item-code 456
//	npidctl contacts search --query "jane" --type athlete
//	npidctl resolve --id 1069902
//	npidctl seasons --id 1069902 --video-type highlight
//	npidctl assign --id 123 --item-code 456 --owner 789
//	npidctl submit --id 1069902 --url https://youtu.be/x --video-type highlight
//	npidctl stage --id 123 --stage in_queue
//	npidctl reply --id 123 --item-code 456 --message "On it!"
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/prospectid/npid-gateway/internal/config"
	"github.com/prospectid/npid-gateway/internal/npid"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "npidctl",
		Short: "NPID Gateway operations CLI",
	}

	root.AddCommand(loginCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(inboxCmd())
	root.AddCommand(contactsCmd())
	root.AddCommand(resolveCmd())
	root.AddCommand(seasonsCmd())
	root.AddCommand(assignCmd())
	root.AddCommand(submitCmd())
	root.AddCommand(stageCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(dueDateCmd())
	root.AddCommand(replyCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// Session commands
// --------------------------------------------------------------------------

func loginCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate against the backend and persist the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(false, func(ctx context.Context, a *npid.Adapter) error {
				if err := a.Login(ctx, force); err != nil {
					return err
				}
				logger.Info("Login successful, session persisted")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Re-authenticate even if the current session is valid")
	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check whether the persisted session is still valid",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(true, func(ctx context.Context, a *npid.Adapter) error {
				ok, err := a.ValidateSession(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("session is no longer valid, run `npidctl login`")
				}
				logger.Info("Session is valid")
				return nil
			})
		},
	}
}

// --------------------------------------------------------------------------
// Inbox commands
// --------------------------------------------------------------------------

func inboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Video-team inbox operations",
	}
	cmd.AddCommand(inboxListCmd())
	cmd.AddCommand(inboxDetailCmd())
	return cmd
}

func inboxListCmd() *cobra.Command {
	var limit int
	var filter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List inbox threads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(true, func(ctx context.Context, a *npid.Adapter) error {
				threads, err := a.InboxThreads(ctx, limit, filter)
				if err != nil {
					return err
				}
				logger.Info("Inbox fetched", "threads", len(threads))
				return printJSON(threads)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 25, "Maximum threads to list")
	cmd.Flags().StringVar(&filter, "filter", npid.FilterBoth, "Assignment filter (both, assigned, unassigned)")
	return cmd
}

func inboxDetailCmd() *cobra.Command {
	var id, itemCode string
	cmd := &cobra.Command{
		Use:   "detail",
		Short: "Show one message with quoted history stripped",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id is required")
			}
			return run(true, func(ctx context.Context, a *npid.Adapter) error {
				detail, err := a.GetMessageDetail(ctx, id, itemCode)
				if err != nil {
					return err
				}
				return printJSON(detail)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Message ID")
	cmd.Flags().StringVar(&itemCode, "item-code", "", "Thread item code")
	return cmd
}

// --------------------------------------------------------------------------
// Contact and identity commands
// --------------------------------------------------------------------------

func contactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Contact search operations",
	}
	cmd.AddCommand(contactsSearchCmd())
	return cmd
}

func contactsSearchCmd() *cobra.Command {
	var query, searchFor string
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search contacts by name or email",
		RunE: func(cmd *cobra.Command, args []string) error {
			if query == "" {
				return fmt.Errorf("--query is required")
			}
			return run(true, func(ctx context.Context, a *npid.Adapter) error {
				results, err := a.SearchContacts(ctx, query, searchFor)
				if err != nil {
					return err
				}
				logger.Info("Search finished", "results", len(results))
				return printJSON(results)
			})
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "Name or email fragment")
	cmd.Flags().StringVar(&searchFor, "type", "athlete", "Contact type (athlete, parent)")
	return cmd
}

func resolveCmd() *cobra.Command {
	var id, mainID, sport string
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve an athlete's identifier pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id is required")
			}
			return run(true, func(ctx context.Context, a *npid.Adapter) error {
				identity, err := a.Resolve(ctx, npid.SearchResult{
					PrimaryID:  id,
					MainID:     mainID,
					SportAlias: sport,
				})
				if err != nil {
					return err
				}
				if identity.Ambiguous() {
					logger.Warn("Main id is an unverified fallback; confirm before precision-sensitive writes")
				}
				return printJSON(identity)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Primary (contact) ID")
	cmd.Flags().StringVar(&mainID, "main-id", "", "Main ID when already known")
	cmd.Flags().StringVar(&sport, "sport", "", "Sport alias")
	return cmd
}

// --------------------------------------------------------------------------
// Video workflow commands
// --------------------------------------------------------------------------

func seasonsCmd() *cobra.Command {
	var id, mainID, sport, videoType string
	cmd := &cobra.Command{
		Use:   "seasons",
		Short: "List season options for a video submission",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" || videoType == "" {
				return fmt.Errorf("--id and --video-type are required")
			}
			return run(true, func(ctx context.Context, a *npid.Adapter) error {
				identity, err := a.Resolve(ctx, npid.SearchResult{
					PrimaryID: id, MainID: mainID, SportAlias: sport,
				})
				if err != nil {
					return err
				}
				seasons, err := a.Seasons(ctx, identity, videoType)
				if err != nil {
					return err
				}
				logger.Info("Seasons fetched", "count", len(seasons))
				return printJSON(seasons)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Primary (contact) ID")
	cmd.Flags().StringVar(&mainID, "main-id", "", "Main ID when already known")
	cmd.Flags().StringVar(&sport, "sport", "", "Sport alias")
	cmd.Flags().StringVar(&videoType, "video-type", "", "Video type (highlight, skills, game)")
	return cmd
}

func assignCmd() *cobra.Command {
	var req npid.AssignRequest
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign an inbox thread to a video-team owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.MessageID == "" || req.OwnerID == "" {
				return fmt.Errorf("--id and --owner are required")
			}
			return run(true, func(ctx context.Context, a *npid.Adapter) error {
				return a.AssignThread(ctx, req)
			})
		},
	}
	cmd.Flags().StringVar(&req.MessageID, "id", "", "Message ID")
	cmd.Flags().StringVar(&req.ItemCode, "item-code", "", "Thread item code")
	cmd.Flags().StringVar(&req.OwnerID, "owner", "", "Video-team owner ID")
	cmd.Flags().StringVar(&req.ContactID, "contact-id", "", "Contact task ID")
	cmd.Flags().StringVar(&req.MainID, "main-id", "", "Athlete main ID")
	cmd.Flags().StringVar(&req.Stage, "stage", "", "Video progress stage")
	cmd.Flags().StringVar(&req.Status, "status", "", "Video progress status")
	return cmd
}

func submitCmd() *cobra.Command {
	var (
		id, mainID, sport      string
		url, source, videoType string
		season                 string
		approve, allowFallback bool
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a video onto an athlete's profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" || url == "" || videoType == "" {
				return fmt.Errorf("--id, --url, and --video-type are required")
			}
			return run(true, func(ctx context.Context, a *npid.Adapter) error {
				identity, err := a.Resolve(ctx, npid.SearchResult{
					PrimaryID: id, MainID: mainID, SportAlias: sport,
				})
				if err != nil {
					return err
				}
				if identity.Ambiguous() && !allowFallback {
					return fmt.Errorf("main id %s is an unverified fallback; pass --allow-fallback to proceed", identity.MainID)
				}
				return a.SubmitVideo(ctx, npid.VideoSubmission{
					Identity:    identity,
					VideoURL:    url,
					Source:      source,
					VideoType:   videoType,
					Season:      season,
					AutoApprove: approve,
				})
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Primary (contact) ID")
	cmd.Flags().StringVar(&mainID, "main-id", "", "Main ID when already known")
	cmd.Flags().StringVar(&sport, "sport", "", "Sport alias")
	cmd.Flags().StringVar(&url, "url", "", "Video URL")
	cmd.Flags().StringVar(&source, "source", "youtube", "Video source (youtube, hudl)")
	cmd.Flags().StringVar(&videoType, "video-type", "", "Video type (highlight, skills, game)")
	cmd.Flags().StringVar(&season, "season", "", "Season dropdown value ({level}:{id})")
	cmd.Flags().BoolVar(&approve, "approve", false, "Auto-approve the video")
	cmd.Flags().BoolVar(&allowFallback, "allow-fallback", false, "Proceed with an unverified fallback main id")
	return cmd
}

func stageCmd() *cobra.Command {
	var id, stage string
	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Update a video task's progress stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" || stage == "" {
				return fmt.Errorf("--id and --stage are required")
			}
			return run(true, func(ctx context.Context, a *npid.Adapter) error {
				if err := a.UpdateStage(ctx, id, stage); err != nil {
					return err
				}
				logger.Info("Stage updated", "id", id, "stage", stage)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Video message ID")
	cmd.Flags().StringVar(&stage, "stage", "", "Stage (in_queue, on_hold, awaiting_client, done)")
	return cmd
}

func statusCmd() *cobra.Command {
	var id, status string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Update a video task's progress status",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" || status == "" {
				return fmt.Errorf("--id and --status are required")
			}
			return run(true, func(ctx context.Context, a *npid.Adapter) error {
				if err := a.UpdateStatus(ctx, id, status); err != nil {
					return err
				}
				logger.Info("Status updated", "id", id, "status", status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Video message ID")
	cmd.Flags().StringVar(&status, "status", "", "Progress status")
	return cmd
}

func dueDateCmd() *cobra.Command {
	var id, date string
	cmd := &cobra.Command{
		Use:   "due-date",
		Short: "Update a video task's due date",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" || date == "" {
				return fmt.Errorf("--id and --date are required")
			}
			return run(true, func(ctx context.Context, a *npid.Adapter) error {
				if err := a.UpdateDueDate(ctx, id, date); err != nil {
					return err
				}
				logger.Info("Due date updated", "id", id, "due_date", date)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Video message ID")
	cmd.Flags().StringVar(&date, "date", "", "Due date (MM/DD/YYYY)")
	return cmd
}

func replyCmd() *cobra.Command {
	var id, itemCode, message string
	cmd := &cobra.Command{
		Use:   "reply",
		Short: "Reply to an inbox thread",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" || message == "" {
				return fmt.Errorf("--id and --message are required")
			}
			return run(true, func(ctx context.Context, a *npid.Adapter) error {
				return a.SendReply(ctx, id, itemCode, message)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Message ID")
	cmd.Flags().StringVar(&itemCode, "item-code", "", "Thread item code")
	cmd.Flags().StringVar(&message, "message", "", "Reply text")
	return cmd
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// run handles config loading, adapter construction, and context
// cancellation. needSession gates the persisted-session load: the login
// command must work without one.
func run(needSession bool, fn func(ctx context.Context, a *npid.Adapter) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	adapter := npid.New(npid.Options{
		BaseURL:           cfg.NPIDBaseURL,
		SessionFile:       cfg.NPIDSessionFile,
		Email:             cfg.NPIDEmail,
		Password:          cfg.NPIDPassword,
		APIKey:            cfg.NPIDAPIKey,
		RequestsPerMinute: cfg.NPIDRequestsPerM,
		Timeout:           cfg.NPIDTimeout,
		Logger:            logger,
	})

	if needSession {
		if err := adapter.EnsureSession(ctx); err != nil {
			return err
		}
	}
	return fn(ctx, adapter)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
