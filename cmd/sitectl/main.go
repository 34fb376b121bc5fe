package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	apiclient "github.com/splax/localvercel/sites/pkg/api/client"
	"github.com/splax/localvercel/sites/pkg/config"
)

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "process":
		err = commandProcess(args)
	case "status":
		err = commandStatus(args)
	case "logs":
		err = commandLogs(args)
	case "delete-site":
		err = commandDeleteSite(args)
	case "version", "--version", "-v":
		fmt.Println(strings.TrimSpace(buildVersion))
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type commonFlags struct {
	api   *string
	token *string
	json  *bool
}

func bindCommon(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		api:   fs.String("api", config.GetString("SITECTL_API", apiclient.DefaultBaseURL), "Queue service base URL"),
		token: fs.String("token", config.GetString("SITECTL_TOKEN", ""), "Queue invocation token"),
		json:  fs.Bool("json", false, "Force JSON output"),
	}
}

func (f commonFlags) client() (*apiclient.Client, error) {
	return apiclient.New(*f.api, apiclient.WithToken(*f.token))
}

// tableOutput reports whether stdout is an interactive terminal.
func (f commonFlags) tableOutput() bool {
	return !*f.json && term.IsTerminal(int(os.Stdout.Fd()))
}

func commandProcess(args []string) error {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	common := bindCommon(fs)
	timeout := fs.Duration("timeout", 10*time.Minute, "Request timeout")
	fs.Parse(args)

	client, err := common.client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	summary, err := client.ProcessQueue(ctx)
	if common.tableOutput() {
		printSummary(os.Stdout, summary)
	} else if encErr := printJSON(os.Stdout, summary); encErr != nil {
		return encErr
	}
	return err
}

func commandStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	common := bindCommon(fs)
	id, err := parseWithID(fs, args)
	if err != nil {
		return errors.New("usage: sitectl status <deployment-id>")
	}

	client, err := common.client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	dep, err := client.GetDeployment(ctx, id)
	if err != nil {
		return err
	}
	if !common.tableOutput() {
		return printJSON(os.Stdout, dep)
	}
	printDeployment(os.Stdout, dep)
	return nil
}

func commandLogs(args []string) error {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	common := bindCommon(fs)
	limit := fs.Int("limit", 100, "Maximum number of stored entries")
	offset := fs.Int("offset", 0, "Entries to skip")
	follow := fs.Bool("follow", false, "Stream new entries after the stored ones")
	id, err := parseWithID(fs, args)
	if err != nil {
		return errors.New("usage: sitectl logs <deployment-id> [-follow]")
	}

	client, err := common.client()
	if err != nil {
		return err
	}
	table := common.tableOutput()
	emit := func(e apiclient.LogEntry) error {
		if table {
			printLogLine(os.Stdout, e)
			return nil
		}
		return json.NewEncoder(os.Stdout).Encode(e)
	}

	listCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	entries, err := client.ListLogs(listCtx, id, *limit, *offset)
	cancel()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := emit(e); err != nil {
			return err
		}
	}
	if !*follow {
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	err = client.FollowLogs(ctx, id, emit)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func commandDeleteSite(args []string) error {
	fs := flag.NewFlagSet("delete-site", flag.ExitOnError)
	common := bindCommon(fs)
	id, err := parseWithID(fs, args)
	if err != nil {
		return errors.New("usage: sitectl delete-site <project-id>")
	}

	client, err := common.client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := client.DeleteProjectSite(ctx, id); err != nil {
		return err
	}
	if !common.tableOutput() {
		return printJSON(os.Stdout, map[string]any{"project_id": id, "deleted": true})
	}
	fmt.Printf("site of project %s deleted\n", id)
	return nil
}

// parseWithID accepts flags before and after the single positional id.
func parseWithID(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() == 0 {
		return "", errors.New("missing id")
	}
	id := fs.Arg(0)
	if err := fs.Parse(fs.Args()[1:]); err != nil {
		return "", err
	}
	if fs.NArg() != 0 {
		return "", errors.New("unexpected arguments")
	}
	return id, nil
}

func printSummary(w io.Writer, s apiclient.Summary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROCESSED\tSUCCEEDED\tFAILED\tREQUEUED\tRECLAIMED\tDURATION")
	fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%s\n", s.Processed, s.Succeeded, s.Failed, s.Requeued, s.Reclaimed, time.Duration(s.Duration)*time.Millisecond)
	tw.Flush()
	for _, e := range s.Errors {
		fmt.Fprintf(w, "  ! %s\n", e)
	}
}

func printDeployment(w io.Writer, d apiclient.Deployment) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	row := func(k, v string) { fmt.Fprintf(tw, "%s\t%s\n", k, v) }
	row("ID", d.ID)
	row("PROJECT", d.ProjectID)
	row("STATUS", d.Status)
	row("ATTEMPTS", fmt.Sprintf("%d/%d", d.AttemptCount, d.MaxAttempts))
	row("CREATED", d.CreatedAt.Format(time.RFC3339))
	if d.StartedAt != nil {
		row("STARTED", d.StartedAt.Format(time.RFC3339))
	}
	if d.CompletedAt != nil {
		row("COMPLETED", d.CompletedAt.Format(time.RFC3339))
	}
	if d.LiveURL != nil {
		row("URL", *d.LiveURL)
	}
	if d.ErrorMessage != nil {
		row("ERROR", *d.ErrorMessage)
	}
	tw.Flush()
}

func printLogLine(w io.Writer, e apiclient.LogEntry) {
	fmt.Fprintf(w, "%s  %-7s  %s\n", e.Timestamp.Local().Format("15:04:05"), strings.ToUpper(e.Level), e.Message)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage() {
	fmt.Printf("sitectl %s\n\n", buildVersion)
	fmt.Print(`Usage:
	sitectl process [-api URL] [-token T] [-json]
	sitectl status <deployment-id> [-json]
	sitectl logs <deployment-id> [-limit N] [-offset N] [-follow] [-json]
	sitectl delete-site <project-id> [-token T] [-json]
	sitectl version

Environment:
	SITECTL_API    queue service base URL (default http://localhost:4100)
	SITECTL_TOKEN  shared secret for process and delete-site requests
`)
}
