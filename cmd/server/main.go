package main

import "perfreview/internal/app/server"

func main() {
	server.Run()
}
