package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/fatih/color"
	"github.com/reconquest/karma-go"

	"github.com/keithlinneman/pmaas/internal/meetingclient"
	"github.com/keithlinneman/pmaas/internal/meetinghttp"
	v "github.com/keithlinneman/pmaas/internal/version"
)

const (
	exitOK     = 0
	exitError  = 1
	exitCutOff = 3
)

var usage = `meeting - fetch important business meetings from a PMaaS server.

Usage:
  meeting [options]
  meeting -h | --help
  meeting --version

Options:
  -u --url <url>          Server base URL. [default: http://localhost:8080]
  -n --count <n>          Number of meetings to fetch. [default: 1]
  -p --pace <per-minute>  Requests per minute, 0 disables pacing. [default: 5]
  -t --timeout <dur>      Timeout per request, not counting pacing. [default: 10s]
  --json                  Print one JSON object per line.
  --no-color              Disable colored output.
  -h --help               Show this screen.
  --version               Show version.
`

type Arguments struct {
	ValueURL     string `docopt:"--url"`
	ValueCount   string `docopt:"--count"`
	ValuePace    string `docopt:"--pace"`
	ValueTimeout string `docopt:"--timeout"`

	FlagJSON    bool `docopt:"--json"`
	FlagNoColor bool `docopt:"--no-color"`
}

type settings struct {
	url     string
	count   int
	pace    int
	timeout time.Duration
	json    bool
}

func main() {
	opts, err := docoptParse(nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitError)
	}
	var args Arguments
	if err := opts.Bind(&args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitError)
	}
	if args.FlagNoColor {
		color.NoColor = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, args, os.Stdout, os.Stderr))
}

// docoptParse reads os.Args when argv is nil.
func docoptParse(argv []string) (docopt.Opts, error) {
	return docopt.ParseArgs(usage, argv, v.Get().String())
}

func parseArguments(args Arguments) (settings, error) {
	s := settings{url: args.ValueURL, json: args.FlagJSON}

	var err error
	if s.count, err = strconv.Atoi(args.ValueCount); err != nil || s.count < 1 {
		return s, karma.Describe("count", args.ValueCount).Format(err, "count must be a positive integer")
	}
	if s.pace, err = strconv.Atoi(args.ValuePace); err != nil || s.pace < 0 {
		return s, karma.Describe("pace", args.ValuePace).Format(err, "pace must be zero or a positive integer")
	}
	if s.timeout, err = time.ParseDuration(args.ValueTimeout); err != nil || s.timeout <= 0 {
		return s, karma.Describe("timeout", args.ValueTimeout).Format(err, "timeout must be a positive duration")
	}
	return s, nil
}

func run(ctx context.Context, args Arguments, stdout, stderr io.Writer) int {
	s, err := parseArguments(args)
	if err != nil {
		fmt.Fprintln(stderr, color.RedString("error:"), err)
		return exitError
	}

	client, err := meetingclient.New(s.url,
		meetingclient.WithPace(s.pace),
		meetingclient.WithTimeout(s.timeout),
		meetingclient.WithUserAgent("pmaas-cli/"+v.Get().Version),
	)
	if err != nil {
		fmt.Fprintln(stderr, color.RedString("error:"), err)
		return exitError
	}

	for i := range s.count {
		name, err := client.Meeting(ctx)

		var cut *meetingclient.QuotaExceededError
		switch {
		case errors.As(err, &cut):
			fmt.Fprintln(stderr, color.YellowString(cut.Reason))
			if cut.Message != "" {
				fmt.Fprintln(stderr, cut.Message)
			}
			return exitCutOff
		case err != nil:
			err = karma.Describe("request", i+1).Format(err, "fetch meeting")
			fmt.Fprintln(stderr, color.RedString("error:"), err)
			return exitError
		}

		if err := printMeeting(stdout, name, s.json); err != nil {
			fmt.Fprintln(stderr, color.RedString("error:"), err)
			return exitError
		}
	}
	return exitOK
}

func printMeeting(w io.Writer, name string, asJSON bool) error {
	if asJSON {
		if err := json.NewEncoder(w).Encode(meetinghttp.MeetingResponse{MeetingName: name}); err != nil {
			return karma.Format(err, "encode meeting")
		}
		return nil
	}
	if _, err := fmt.Fprintln(w, color.GreenString(name)); err != nil {
		return karma.Format(err, "write meeting")
	}
	return nil
}
