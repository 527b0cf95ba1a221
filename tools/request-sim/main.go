package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/yw9142/ProjectBridge-sub000/libs/auth"
)

// request-sim files a project request as a client-tier user and optionally
// tails the live notification stream of another user, for exercising the
// fan-out pipeline end to end against a local stack.
func main() {
	var (
		baseURL   = flag.String("base-url", getenv("BASE_URL", "http://localhost:8080"), "collab-service base url")
		secret    = flag.String("secret", getenv("JWT_SECRET", "dev-secret"), "hs256 signing secret")
		tenantID  = flag.String("tenant-id", getenv("TENANT_ID", ""), "tenant id")
		userID    = flag.String("user-id", getenv("USER_ID", ""), "acting user id")
		role      = flag.String("role", getenv("ROLE", "client"), "acting user role")
		projectID = flag.String("project-id", getenv("PROJECT_ID", ""), "project id")
		title     = flag.String("title", "Simulated request", "request title")
		body      = flag.String("body", "Filed by request-sim", "request body")
		tailUser  = flag.String("tail-user", "", "user id whose stream to tail instead of filing a request")
	)
	flag.Parse()

	if strings.TrimSpace(*tenantID) == "" {
		fatal("TENANT_ID is required")
	}

	if strings.TrimSpace(*tailUser) != "" {
		token := mustSign(*tailUser, *tenantID, *role, *secret)
		tailStream(*baseURL, token)
		return
	}

	if strings.TrimSpace(*userID) == "" {
		fatal("USER_ID is required")
	}
	if strings.TrimSpace(*projectID) == "" {
		fatal("PROJECT_ID is required")
	}

	token := mustSign(*userID, *tenantID, *role, *secret)
	payload, err := json.Marshal(map[string]string{
		"project_id": *projectID,
		"title":      *title,
		"body":       *body,
	})
	if err != nil {
		fatal(err.Error())
	}

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+"/api/requests", bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()

	var created struct {
		RequestID string `json:"request_id"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&created)
	fmt.Printf("status=%d request_id=%s\n", resp.StatusCode, created.RequestID)
}

func tailStream(baseURL, token string) {
	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(baseURL, "/")+"/api/notifications/stream", nil)
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fatal(fmt.Sprintf("stream returned status %d", resp.StatusCode))
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fmt.Println(line)
	}
	if err := scanner.Err(); err != nil {
		fatal(err.Error())
	}
}

func mustSign(userID, tenantID, role, secret string) string {
	now := time.Now()
	token, err := auth.SignHS256(auth.Claims{
		Sub:      userID,
		TenantID: tenantID,
		Role:     role,
		Iat:      now.Unix(),
		Exp:      now.Add(1 * time.Hour).Unix(),
	}, secret)
	if err != nil {
		fatal(err.Error())
	}
	return token
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
