package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"
)

var httpClient = &http.Client{Timeout: 15 * time.Second}

func handleAuth(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: taskdesk auth <login|logout|who>")
		return nil
	}

	switch args[0] {
	case "login":
		return loginUser(args[1:])
	case "logout":
		return logoutUser()
	case "who":
		return whoAmI()
	default:
		return fmt.Errorf("unknown auth command: %s", args[0])
	}
}

func handleTask(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: taskdesk task <list|show|complete|report>")
		return nil
	}

	switch args[0] {
	case "list":
		return listTasks(args[1:])
	case "show":
		return showTask(args[1:])
	case "complete":
		return completeTask(args[1:])
	case "report":
		return taskReport(args[1:])
	default:
		return fmt.Errorf("unknown task command: %s", args[0])
	}
}

// apiError is the server's error body
type apiError struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

// call sends an authenticated request and decodes a 2xx body into out
func call(method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, getAPIURL()+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	addAuthHeader(req)

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr apiError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return formatAPIError(resp.StatusCode, apiErr)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func formatAPIError(status int, apiErr apiError) error {
	msg := apiErr.Error
	if msg == "" {
		msg = http.StatusText(status)
	}
	for field, m := range apiErr.Fields {
		msg += fmt.Sprintf("\n  %s: %s", field, m)
	}
	return fmt.Errorf("%d %s", status, msg)
}

func loginUser(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("username", "", "username")
	password := fs.String("password", "", "password")
	fs.Parse(args)

	if *username == "" || *password == "" {
		fs.PrintDefaults()
		return errors.New("username and password are required")
	}

	var result struct {
		Token string `json:"token"`
		User  struct {
			Role string `json:"role"`
		} `json:"user"`
	}
	if err := call(http.MethodPost, "/auth/login", map[string]string{"username": *username, "password": *password}, &result); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if err := saveToken(result.Token); err != nil {
		return err
	}
	fmt.Printf("✓ Logged in as: %s (%s)\n", *username, result.User.Role)
	return nil
}

func logoutUser() error {
	if loadToken() != "" {
		if err := call(http.MethodPost, "/auth/logout", nil, nil); err != nil {
			fmt.Fprintf(os.Stderr, "warning: server logout failed: %v\n", err)
		}
	}
	os.Remove(tokenFile())
	fmt.Println("✓ Logged out")
	return nil
}

func whoAmI() error {
	if loadToken() == "" {
		fmt.Println("Not logged in")
		return nil
	}
	var me struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
		Role     string `json:"role"`
	}
	if err := call(http.MethodGet, "/auth/me", nil, &me); err != nil {
		return err
	}
	fmt.Printf("✓ Logged in as %s (%s, id %d)\n", me.Username, me.Role, me.ID)
	return nil
}

type taskView struct {
	ID               int64  `json:"id"`
	Title            string `json:"title"`
	Description      string `json:"description"`
	AssignedTo       int64  `json:"assigned_to"`
	DueDate          string `json:"due_date"`
	Status           string `json:"status"`
	CompletionReport string `json:"completion_report"`
	WorkedHours      *int   `json:"worked_hours"`
	Overdue          bool   `json:"overdue"`
}

func listTasks(args []string) error {
	fs := flag.NewFlagSet("task list", flag.ExitOnError)
	status := fs.String("status", "", "pending, in_progress or completed")
	fs.Parse(args)

	path := "/tasks"
	if *status != "" {
		path += "?status=" + *status
	}
	var tasks []taskView
	if err := call(http.MethodGet, path, nil, &tasks); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tASSIGNEE\tDUE\tSTATUS")
	for _, t := range tasks {
		due := t.DueDate
		if t.Overdue {
			due += " (overdue)"
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", t.ID, t.Title, t.AssignedTo, due, t.Status)
	}
	return w.Flush()
}

func showTask(args []string) error {
	fs := flag.NewFlagSet("task show", flag.ExitOnError)
	id := fs.Int64("id", 0, "task id")
	fs.Parse(args)
	if *id <= 0 {
		return errors.New("-id is required")
	}

	var t taskView
	if err := call(http.MethodGet, fmt.Sprintf("/tasks/%d", *id), nil, &t); err != nil {
		return err
	}
	fmt.Printf("#%d %s\n  status:   %s\n  due:      %s\n  assignee: %d\n", t.ID, t.Title, t.Status, t.DueDate, t.AssignedTo)
	if t.Description != "" {
		fmt.Printf("  %s\n", t.Description)
	}
	return nil
}

// completionBody is the update sent by "task complete"
func completionBody(report string, hours int) (map[string]any, error) {
	if report == "" {
		return nil, errors.New("-report is required to complete a task")
	}
	if hours <= 0 {
		return nil, errors.New("-hours must be a positive number")
	}
	return map[string]any{
		"status":            "completed",
		"completion_report": report,
		"worked_hours":      hours,
	}, nil
}

func completeTask(args []string) error {
	fs := flag.NewFlagSet("task complete", flag.ExitOnError)
	id := fs.Int64("id", 0, "task id")
	report := fs.String("report", "", "completion report")
	hours := fs.Int("hours", 0, "worked hours")
	fs.Parse(args)
	if *id <= 0 {
		return errors.New("-id is required")
	}

	body, err := completionBody(*report, *hours)
	if err != nil {
		return err
	}
	var t taskView
	if err := call(http.MethodPatch, fmt.Sprintf("/tasks/%d", *id), body, &t); err != nil {
		return err
	}
	fmt.Printf("✓ Task #%d completed\n", t.ID)
	return nil
}

func taskReport(args []string) error {
	fs := flag.NewFlagSet("task report", flag.ExitOnError)
	id := fs.Int64("id", 0, "task id")
	fs.Parse(args)
	if *id <= 0 {
		return errors.New("-id is required")
	}

	var report struct {
		CompletionReport string `json:"completion_report"`
		WorkedHours      int    `json:"worked_hours"`
	}
	if err := call(http.MethodGet, fmt.Sprintf("/tasks/%d/report", *id), nil, &report); err != nil {
		return err
	}
	fmt.Printf("Worked hours: %d\n\n%s\n", report.WorkedHours, report.CompletionReport)
	return nil
}

// Helper functions
func getAPIURL() string {
	if url := os.Getenv("TASKDESK_API"); url != "" {
		return url
	}
	return "http://localhost:8080/api"
}

func tokenFile() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".taskdesk", "token")
}

func saveToken(token string) error {
	if err := os.MkdirAll(filepath.Dir(tokenFile()), 0700); err != nil {
		return err
	}
	return os.WriteFile(tokenFile(), []byte(token), 0600)
}

func loadToken() string {
	data, _ := os.ReadFile(tokenFile())
	return string(bytes.TrimSpace(data))
}

func addAuthHeader(req *http.Request) {
	if token := loadToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
