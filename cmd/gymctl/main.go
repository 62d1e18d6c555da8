// Command gymctl is a terminal client for the gym scheduler API. It logs in
// once and keeps the session alive by refreshing the access token whenever
// the server reports it as expired.
//
// Usage:
//
//	gymctl [-server URL] schedule [YYYY-MM-DD]
//	gymctl [-server URL] book PATTERN_ID
//	gymctl [-server URL] bookings
//	gymctl [-server URL] cancel BOOKING_ID
//
// Credentials are read from GYM_USERNAME and GYM_PASSWORD.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/example/gym-scheduler/internal/logging"
	"github.com/example/gym-scheduler/internal/sessionclient"
)

var errUsage = errors.New("usage: gymctl [-server URL] schedule [YYYY-MM-DD] | book PATTERN_ID | bookings | cancel BOOKING_ID")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "gymctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("gymctl", flag.ContinueOnError)
	flags.SetOutput(stderr)
	server := flags.String("server", "http://localhost:8080", "base URL of the gym scheduler API")
	logLevel := flags.String("log-level", "warn", "log level: debug, info, warn or error")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		return errUsage
	}

	logger, err := logging.New(stderr, "text", *logLevel)
	if err != nil {
		return err
	}

	username, password := strings.TrimSpace(getenv("GYM_USERNAME")), getenv("GYM_PASSWORD")
	if username == "" || password == "" {
		return errors.New("GYM_USERNAME and GYM_PASSWORD must be set")
	}

	api, err := login(ctx, strings.TrimRight(*server, "/"), username, password, logger)
	if err != nil {
		return err
	}
	defer api.logout(ctx)

	command, rest := flags.Arg(0), flags.Args()[1:]
	switch command {
	case "schedule":
		week := ""
		if len(rest) > 0 {
			week = rest[0]
		}
		return api.schedule(ctx, week, stdout)
	case "book":
		if len(rest) != 1 {
			return errUsage
		}
		return api.book(ctx, rest[0], stdout)
	case "bookings":
		return api.bookings(ctx, stdout)
	case "cancel":
		if len(rest) != 1 {
			return errUsage
		}
		return api.cancel(ctx, rest[0], stdout)
	}
	return fmt.Errorf("unknown command %q: %w", command, errUsage)
}

type apiClient struct {
	baseURL  string
	http     *http.Client
	sessions *sessionclient.Client
}

func login(ctx context.Context, baseURL, username, password string, logger *slog.Logger) (*apiClient, error) {
	plain := &http.Client{Timeout: 15 * time.Second}

	var tokens sessionclient.Tokens
	if err := postJSON(ctx, plain, baseURL+"/sessions", map[string]string{"username": username, "password": password}, &tokens); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	sessions := sessionclient.NewWithLogger(&sessionclient.HTTPRefresher{BaseURL: baseURL, HTTPClient: plain}, tokens, logger)
	return &apiClient{
		baseURL: baseURL,
		http: &http.Client{
			Timeout:   15 * time.Second,
			Transport: sessionclient.NewTransport(sessions, nil),
		},
		sessions: sessions,
	}, nil
}

func (c *apiClient) logout(ctx context.Context) {
	tokens, ok := c.sessions.Tokens()
	if !ok {
		return
	}
	payload, _ := json.Marshal(map[string]string{"refresh_token": tokens.RefreshToken})
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/sessions/current", bytes.NewReader(payload))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if resp, err := http.DefaultClient.Do(req); err == nil {
		_ = resp.Body.Close()
	}
	c.sessions.Logout()
}

type occurrence struct {
	PatternID string `json:"pattern_id"`
	ClassName string `json:"class_name"`
	Start     string `json:"start"`
	Available int    `json:"available"`
}

type booking struct {
	ID              string `json:"id"`
	PatternID       string `json:"pattern_id"`
	ClassName       string `json:"class_name"`
	OccurrenceStart string `json:"occurrence_start"`
	Status          string `json:"status"`
}

func (c *apiClient) schedule(ctx context.Context, week string, out io.Writer) error {
	endpoint := c.baseURL + "/schedule"
	if week != "" {
		endpoint += "?" + url.Values{"week": {week}}.Encode()
	}

	var body struct {
		WeekStart   string       `json:"week_start"`
		Occurrences []occurrence `json:"occurrences"`
	}
	if err := c.send(ctx, http.MethodGet, endpoint, nil, &body); err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "week of %s\n", body.WeekStart)
	fmt.Fprintln(w, "START\tCLASS\tFREE\tPATTERN")
	for _, o := range body.Occurrences {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", o.Start, o.ClassName, o.Available, o.PatternID)
	}
	return w.Flush()
}

func (c *apiClient) book(ctx context.Context, patternID string, out io.Writer) error {
	var body struct {
		Booking booking `json:"booking"`
	}
	if err := c.send(ctx, http.MethodPost, c.baseURL+"/bookings", map[string]string{"pattern_id": patternID}, &body); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "booked %s at %s (booking %s)\n", body.Booking.ClassName, body.Booking.OccurrenceStart, body.Booking.ID)
	return err
}

func (c *apiClient) bookings(ctx context.Context, out io.Writer) error {
	var body struct {
		Bookings []booking `json:"bookings"`
	}
	if err := c.send(ctx, http.MethodGet, c.baseURL+"/bookings", nil, &body); err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BOOKING\tCLASS\tSTART\tSTATUS")
	for _, b := range body.Bookings {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.ID, b.ClassName, b.OccurrenceStart, b.Status)
	}
	return w.Flush()
}

func (c *apiClient) cancel(ctx context.Context, bookingID string, out io.Writer) error {
	var body struct {
		Booking booking `json:"booking"`
	}
	endpoint := c.baseURL + "/bookings/" + url.PathEscape(bookingID) + "/cancel"
	if err := c.send(ctx, http.MethodPost, endpoint, nil, &body); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "cancelled booking %s for %s\n", body.Booking.ID, body.Booking.ClassName)
	return err
}

func (c *apiClient) send(ctx context.Context, method, endpoint string, payload, dest any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	return sessionclient.DecodeResponse(resp, dest)
}

func postJSON(ctx context.Context, client *http.Client, endpoint string, payload, dest any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	return sessionclient.DecodeResponse(resp, dest)
}
