package main

import "github.com/KaramelBytes/gitlab-search/cmd"

func main() {
	cmd.Execute()
}
