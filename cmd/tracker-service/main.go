package main

import (
	"log"

	"github.com/helpdesk-micro/tracker-service/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
