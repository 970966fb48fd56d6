package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
)

func main() {
	api := os.Getenv("API_BASE")
	if api == "" {
		api = "http://localhost:8080"
	}
	key := os.Getenv("API_KEY")

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Enter an API URL to monitor (e.g., https://api.example.com/health): ")
	raw, _ := reader.ReadString('\n')
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	if _, err := url.ParseRequestURI(raw); err != nil {
		fmt.Println("Invalid URL.")
		return
	}

	body, _ := json.Marshal(map[string]string{"url": raw})
	req, _ := http.NewRequest(http.MethodPost, api+"/api/targets", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Println("Error contacting API:", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		fmt.Println("Added! Checks start within a few seconds; see GET /api/targets.")
	} else {
		fmt.Println("API returned status:", resp.Status)
	}
}
