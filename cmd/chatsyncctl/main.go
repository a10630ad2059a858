package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/chatsync-dev/chatsync/internal/api"
	"github.com/chatsync-dev/chatsync/internal/appdir"
	"github.com/chatsync-dev/chatsync/internal/client"
)

func main() {
	dataDir := flag.String("data-dir", "", "data directory (default ~/.chatsync)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	forceFlag := flag.Bool("force", false, "sync start: ignore the freshness window")
	backupFlag := flag.Bool("backup", false, "rm: back up conversations before deleting")
	flag.Parse()

	dir := *dataDir
	if dir == "" {
		dir = appdir.BaseDir()
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c := client.New(appdir.SocketPath(dir))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch args[0] {
	case "health":
		cmdHealth(ctx, c, *jsonFlag)
	case "platforms":
		cmdPlatforms(ctx, c, *jsonFlag)
	case "auth":
		requireArgs(args, 2, "chatsyncctl auth <platform>")
		cmdAuth(ctx, c, args[1], *jsonFlag)
	case "cred":
		cmdCred(ctx, c, args[1:], *jsonFlag)
	case "sync":
		cmdSync(ctx, c, args[1:], *jsonFlag, *forceFlag)
	case "ls":
		requireArgs(args, 2, "chatsyncctl ls <platform> [query]")
		query := ""
		if len(args) > 2 {
			query = args[2]
		}
		cmdList(ctx, c, args[1], query, *jsonFlag)
	case "show":
		requireArgs(args, 3, "chatsyncctl show <platform> <id>")
		cmdShow(ctx, c, args[1], args[2], *jsonFlag)
	case "rm":
		requireArgs(args, 3, "chatsyncctl [--backup] rm <platform> <id>...")
		cmdRemove(ctx, c, args[1], args[2:], *backupFlag, *jsonFlag)
	case "backup":
		cmdBackup(ctx, c, args[1:], *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: chatsyncctl [--data-dir <dir>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  health                              Check the daemon is up")
	fmt.Fprintln(os.Stderr, "  platforms                           List supported platforms")
	fmt.Fprintln(os.Stderr, "  auth <platform>                     Probe the platform session")
	fmt.Fprintln(os.Stderr, "  cred set <platform> <credential>    Push a credential")
	fmt.Fprintln(os.Stderr, "  cred status                         Show credential presence")
	fmt.Fprintln(os.Stderr, "  cred clear <platform>               Drop a credential")
	fmt.Fprintln(os.Stderr, "  sync start [--force] <platform>     Start a sync run")
	fmt.Fprintln(os.Stderr, "  sync stop <platform>                Abort the running sync")
	fmt.Fprintln(os.Stderr, "  sync status [platform]              Show sync state")
	fmt.Fprintln(os.Stderr, "  ls <platform> [query]               List (or search) cached conversations")
	fmt.Fprintln(os.Stderr, "  show <platform> <id>                Show a conversation's messages")
	fmt.Fprintln(os.Stderr, "  rm [--backup] <platform> <id>...    Delete conversations remotely")
	fmt.Fprintln(os.Stderr, "  backup create <platform> <id>       Back up a conversation")
	fmt.Fprintln(os.Stderr, "  backup ls [platform]                List backups")
	fmt.Fprintln(os.Stderr, "  backup show <platform> <id>         Show a backup's messages")
	fmt.Fprintln(os.Stderr, "  backup rm <platform> <id>           Delete a backup")
}

func requireArgs(args []string, n int, usage string) {
	if len(args) < n {
		fmt.Fprintf(os.Stderr, "usage: %s\n", usage)
		os.Exit(1)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func cmdHealth(ctx context.Context, c *client.Client, jsonOut bool) {
	h, err := c.Health(ctx)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(h)
		return
	}
	fmt.Printf("daemon up (pid %d)\n", h.PID)
}

func cmdPlatforms(ctx context.Context, c *client.Client, jsonOut bool) {
	platforms, err := c.Platforms(ctx)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(platforms)
		return
	}
	for _, p := range platforms {
		authed := "no credential"
		if p.Authenticated {
			authed = "credential set"
		}
		fmt.Printf("%-10s %-10s %-16s %s\n", p.ID, p.Name, p.Phase, authed)
	}
}

func cmdAuth(ctx context.Context, c *client.Client, platformID string, jsonOut bool) {
	res, err := c.CheckAuth(ctx, platformID)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(res)
		return
	}
	if res.OK {
		fmt.Printf("%s: authenticated\n", platformID)
		return
	}
	fmt.Printf("%s: %s (%s)\n", platformID, res.Message, res.Code)
}

func cmdCred(ctx context.Context, c *client.Client, args []string, jsonOut bool) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: chatsyncctl cred <set|status|clear>")
		os.Exit(1)
	}
	switch args[0] {
	case "set":
		requireArgs(args, 3, "chatsyncctl cred set <platform> <credential>")
		platformID, preview, err := c.SetCredential(ctx, args[1], "", args[2])
		if err != nil {
			fatal(err)
		}
		fmt.Printf("%s: credential set (%s)\n", platformID, preview)
	case "status":
		statuses, err := c.CredentialStatus(ctx)
		if err != nil {
			fatal(err)
		}
		if jsonOut {
			outputJSON(statuses)
			return
		}
		for _, s := range statuses {
			if s.Present {
				fmt.Printf("%-10s %s\n", s.Platform, s.Preview)
			} else {
				fmt.Printf("%-10s (none)\n", s.Platform)
			}
		}
	case "clear":
		requireArgs(args, 2, "chatsyncctl cred clear <platform>")
		if err := c.ClearCredential(ctx, args[1]); err != nil {
			fatal(err)
		}
		fmt.Printf("%s: credential cleared\n", args[1])
	default:
		fmt.Fprintf(os.Stderr, "unknown cred subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

func cmdSync(ctx context.Context, c *client.Client, args []string, jsonOut, force bool) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: chatsyncctl sync <start|stop|status>")
		os.Exit(1)
	}
	switch args[0] {
	case "start":
		requireArgs(args, 2, "chatsyncctl [--force] sync start <platform>")
		result, err := c.StartSync(ctx, args[1], force)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("%s: %s\n", args[1], result)
	case "stop":
		requireArgs(args, 2, "chatsyncctl sync stop <platform>")
		stopped, err := c.StopSync(ctx, args[1])
		if err != nil {
			fatal(err)
		}
		if stopped {
			fmt.Printf("%s: abort requested\n", args[1])
		} else {
			fmt.Printf("%s: no sync running\n", args[1])
		}
	case "status":
		if len(args) >= 2 {
			st, err := c.SyncStatus(ctx, args[1])
			if err != nil {
				fatal(err)
			}
			if jsonOut {
				outputJSON(st)
				return
			}
			printSyncStatus(*st)
			return
		}
		statuses, err := c.SyncStatusAll(ctx)
		if err != nil {
			fatal(err)
		}
		if jsonOut {
			outputJSON(statuses)
			return
		}
		for _, st := range statuses {
			printSyncStatus(st)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown sync subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

func printSyncStatus(st api.SyncStatus) {
	fmt.Printf("%s: %s", st.Platform, st.Phase)
	if st.Progress != nil {
		fmt.Printf(" (%d/%d)", st.Progress.Loaded, st.Progress.Total)
	}
	if st.LastSyncTime > 0 {
		state := "partial"
		if st.SyncComplete {
			state = "complete"
		}
		fmt.Printf(", %d conversations, %s, last sync %s",
			st.TotalCount, state, time.UnixMilli(st.LastSyncTime).Format(time.RFC3339))
	}
	if st.LastError != "" {
		fmt.Printf(", last error: %s", st.LastError)
	}
	fmt.Println()
}

func cmdList(ctx context.Context, c *client.Client, platformID, query string, jsonOut bool) {
	if query != "" {
		convs, err := c.SearchConversations(ctx, platformID, query, 0)
		if err != nil {
			fatal(err)
		}
		if jsonOut {
			outputJSON(convs)
			return
		}
		for _, conv := range convs {
			fmt.Printf("%-40s %s\n", conv.ID, conv.Title)
		}
		return
	}

	snap, err := c.Conversations(ctx, platformID)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(snap)
		return
	}
	for _, conv := range snap.Conversations {
		updated := time.UnixMilli(conv.UpdateTime).Format("2006-01-02 15:04")
		fmt.Printf("%-40s %s  %s\n", conv.ID, updated, conv.Title)
	}
	state := "partial"
	if snap.SyncComplete {
		state = "complete"
	}
	fmt.Printf("%d of %d conversations (%s)\n", len(snap.Conversations), snap.TotalCount, state)
}

func cmdShow(ctx context.Context, c *client.Client, platformID, id string, jsonOut bool) {
	detail, err := c.ConversationDetail(ctx, platformID, id)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(detail)
		return
	}
	if detail.Conversation != nil {
		fmt.Printf("# %s\n\n", detail.Conversation.Title)
	}
	for _, m := range detail.Messages {
		fmt.Printf("[%s] %s\n", m.Role, m.Content)
	}
}

func cmdRemove(ctx context.Context, c *client.Client, platformID string, ids []string, backup, jsonOut bool) {
	if len(ids) == 1 {
		if err := c.DeleteConversation(ctx, platformID, ids[0], backup); err != nil {
			fatal(err)
		}
		fmt.Printf("%s: deleted %s\n", platformID, ids[0])
		return
	}

	res, err := c.DeleteConversations(ctx, platformID, ids, backup)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(res)
		return
	}
	fmt.Printf("%s: deleted %d, failed %d\n", platformID, len(res.Succeeded), len(res.Failed))
	for _, id := range res.Failed {
		fmt.Printf("  failed: %s\n", id)
	}
}

func cmdBackup(ctx context.Context, c *client.Client, args []string, jsonOut bool) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: chatsyncctl backup <create|ls|show|rm>")
		os.Exit(1)
	}
	switch args[0] {
	case "create":
		requireArgs(args, 3, "chatsyncctl backup create <platform> <id>")
		b, err := c.CreateBackup(ctx, args[1], args[2])
		if err != nil {
			fatal(err)
		}
		fmt.Printf("%s: backed up %s (%d messages)\n", b.Platform, b.ID, len(b.Messages))
	case "ls":
		platformID := ""
		if len(args) >= 2 {
			platformID = args[1]
		}
		backups, err := c.Backups(ctx, platformID)
		if err != nil {
			fatal(err)
		}
		if jsonOut {
			outputJSON(backups)
			return
		}
		for _, b := range backups {
			when := time.UnixMilli(b.BackupTime).Format("2006-01-02 15:04")
			fmt.Printf("%-10s %-40s %s  %s\n", b.Platform, b.ID, when, b.Title)
		}
	case "show":
		requireArgs(args, 3, "chatsyncctl backup show <platform> <id>")
		b, err := c.BackupDetail(ctx, args[1], args[2])
		if err != nil {
			fatal(err)
		}
		if jsonOut {
			outputJSON(b)
			return
		}
		fmt.Printf("# %s (backed up %s)\n\n", b.Title, time.UnixMilli(b.BackupTime).Format(time.RFC3339))
		for _, m := range b.Messages {
			fmt.Printf("[%s] %s\n", m.Role, m.Content)
		}
	case "rm":
		requireArgs(args, 3, "chatsyncctl backup rm <platform> <id>")
		if err := c.DeleteBackup(ctx, args[1], args[2]); err != nil {
			fatal(err)
		}
		fmt.Printf("%s: backup %s removed\n", args[1], args[2])
	default:
		fmt.Fprintf(os.Stderr, "unknown backup subcommand: %s\n", args[0])
		os.Exit(1)
	}
}
