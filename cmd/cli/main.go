package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "create-superadmin":
		err = createAccount("create-superadmin", roleSuperadmin, args)
	case "create-admin":
		err = createAccount("create-admin", roleAdmin, args)
	case "create-user":
		err = createAccount("create-user", roleUser, args)
	case "users":
		err = listUsers(args)
	case "migrate":
		err = migrate(args)
	case "auth":
		err = handleAuth(args)
	case "task":
		err = handleTask(args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`taskdesk CLI

Usage:
  taskdesk <command> [options]

Bootstrap commands (write straight to the database configured by .env / CONFIG_FILE / DB_*):
  create-superadmin  Create a superadmin account
  create-admin       Create an admin account
  create-user        Create a user account, optionally under an admin
  users              List accounts
  migrate            Apply the database schema

API commands:
  auth               Authentication (login, logout, who)
  task               Tasks (list, show, complete, report)
  help               Show this help message

Environment Variables:
  TASKDESK_API       API endpoint (default: http://localhost:8080/api)
  TASKDESK_PASSWORD  Password for create-* when -password is omitted

Examples:
  taskdesk create-superadmin -username root -password 'S3cure-pass'
  taskdesk create-user -username uma -password 'S3cure-pass' -admin ada
  taskdesk auth login -username uma -password 'S3cure-pass'
  taskdesk task list -status pending
  taskdesk task complete -id 12 -report "Deployed" -hours 3
`)
}
