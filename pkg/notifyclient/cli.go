package notifyclient

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

const defaultBaseURL = "http://localhost:8086"

// RunCLI dispatches notifyctl subcommands.
func RunCLI(prog string, args []string, stderr io.Writer) error {
	if len(args) < 1 {
		return UsageError{Program: prog}
	}
	cmd := args[0]
	rest := args[1:]
	var err error
	switch cmd {
	case "register":
		err = runRegister(rest)
	case "unregister":
		err = runUnregister(rest)
	case "prefs":
		err = runPrefs(rest)
	case "history":
		err = runHistory(rest)
	case "send":
		err = runSend(rest)
	case "sweep":
		err = runSweep(rest)
	default:
		return UsageError{Program: prog}
	}
	if err != nil {
		if stderr == nil {
			stderr = os.Stderr
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
	}
	return err
}

type UsageError struct {
	Program string
}

func (u UsageError) Error() string {
	if u.Program == "" {
		u.Program = "notifyctl"
	}
	return fmt.Sprintf("Usage: %s <command> [options]", u.Program)
}

func (UsageError) UsageLines() []string {
	return []string{
		"Commands:",
		"  register    Register a device token for a user",
		"  unregister  Remove a token (or all tokens for a user)",
		"  prefs       Show or update a user's notification preferences",
		"  history     Show a user's recent notification history",
		"  send        Send an ad-hoc notification through the pipeline",
		"  sweep       Trigger a background sweep (retry, scheduled, ...)",
	}
}

func newFlagSet(name string) (*flag.FlagSet, *string, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	baseURL := fs.String("url", getenv("NOTIFYCTL_URL", defaultBaseURL), "service base URL")
	secret := fs.String("sweep-secret", os.Getenv("NOTIFYCTL_SWEEP_SECRET"), "sweep shared secret")
	return fs, baseURL, secret
}

func runRegister(args []string) error {
	fs, baseURL, secret := newFlagSet("register")
	userID := fs.String("user", "", "user UUID")
	token := fs.String("token", "", "device token")
	ch := fs.String("channel", "", "push channel (fcm or apns)")
	platform := fs.String("platform", "", "device platform")
	tz := fs.String("timezone", "", "device timezone")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*userID) == "" || strings.TrimSpace(*token) == "" || strings.TrimSpace(*ch) == "" {
		return fmt.Errorf("user, token and channel are required")
	}
	c := New(*baseURL, *secret)
	if err := c.RegisterDevice(context.Background(), Device{
		UserID:   *userID,
		Token:    *token,
		Channel:  *ch,
		Platform: *platform,
		Timezone: *tz,
	}); err != nil {
		return err
	}
	fmt.Println("device registered")
	return nil
}

func runUnregister(args []string) error {
	fs, baseURL, secret := newFlagSet("unregister")
	token := fs.String("token", "", "device token to remove")
	userID := fs.String("user", "", "remove every token for this user")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c := New(*baseURL, *secret)
	switch {
	case strings.TrimSpace(*token) != "":
		if err := c.UnregisterToken(context.Background(), *token); err != nil {
			return err
		}
	case strings.TrimSpace(*userID) != "":
		if err := c.UnregisterUser(context.Background(), *userID); err != nil {
			return err
		}
	default:
		return fmt.Errorf("token or user is required")
	}
	fmt.Println("unregistered")
	return nil
}

func runPrefs(args []string) error {
	fs, baseURL, secret := newFlagSet("prefs")
	userID := fs.String("user", "", "user UUID")
	set := fs.String("set", "", "JSON preferences to save (show current when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*userID) == "" {
		return fmt.Errorf("user is required")
	}
	c := New(*baseURL, *secret)

	if strings.TrimSpace(*set) != "" {
		var prefs Preferences
		if err := json.Unmarshal([]byte(*set), &prefs); err != nil {
			return fmt.Errorf("invalid preferences JSON: %w", err)
		}
		if err := c.PutPreferences(context.Background(), *userID, prefs); err != nil {
			return err
		}
		fmt.Println("preferences saved")
		return nil
	}

	prefs, err := c.GetPreferences(context.Background(), *userID)
	if err != nil {
		return err
	}
	return printJSON(prefs)
}

func runHistory(args []string) error {
	fs, baseURL, secret := newFlagSet("history")
	userID := fs.String("user", "", "user UUID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*userID) == "" {
		return fmt.Errorf("user is required")
	}
	c := New(*baseURL, *secret)
	entries, err := c.History(context.Background(), *userID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		status := "failed"
		if e.Delivered {
			status = "delivered"
		}
		fmt.Printf("%s  %-22s %-5s %-9s %s\n",
			e.SentAt.Format("2006-01-02 15:04"), e.Type, e.Channel, status, e.Title)
	}
	return nil
}

func runSend(args []string) error {
	fs, baseURL, secret := newFlagSet("send")
	userID := fs.String("user", "", "user UUID")
	typ := fs.String("type", "", "notification type")
	title := fs.String("title", "", "notification title")
	body := fs.String("body", "", "notification body")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*userID) == "" || strings.TrimSpace(*typ) == "" {
		return fmt.Errorf("user and type are required")
	}
	if *title == "" || *body == "" {
		return fmt.Errorf("title and body are required")
	}
	c := New(*baseURL, *secret)
	res, err := c.Send(context.Background(), SendRequest{
		UserID: *userID,
		Type:   *typ,
		Title:  *title,
		Body:   *body,
	})
	if err != nil {
		return err
	}
	if res.Success {
		fmt.Printf("delivered via %s\n", res.Channel)
	} else {
		fmt.Printf("not delivered: %s\n", res.Reason)
	}
	return nil
}

func runSweep(args []string) error {
	fs, baseURL, secret := newFlagSet("sweep")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("exactly one sweep name is required (retry, scheduled, progress, weekly-report, weekly-reminder, unstick, prune-history)")
	}
	c := New(*baseURL, *secret)
	out, err := c.Sweep(context.Background(), fs.Arg(0))
	if err != nil {
		return err
	}
	var pretty any
	if err := json.Unmarshal(out, &pretty); err != nil {
		fmt.Println(string(out))
		return nil
	}
	return printJSON(pretty)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
