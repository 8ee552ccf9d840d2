package main

import "github.com/capybara-rs/scheduler/internal/cli"

func main() {
	cli.Execute()
}
