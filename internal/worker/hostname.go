package worker

import "os"

func getHostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "dispatch-worker"
	}
	return h
}
