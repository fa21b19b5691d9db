/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package access

import (
	"context"
	"fmt"
	"net/http"
)

// CheckFrontend makes an authenticated request to the frontend.
func CheckFrontend(ctx context.Context, hc *http.Client, url, token string) error {
	if url == "" {
		return fmt.Errorf("no frontend_url set for profile")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("invalid frontend url %q: %w", url, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("could not reach frontend: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("frontend rejected token: %s", resp.Status)
	case resp.StatusCode >= 400:
		return fmt.Errorf("frontend returned %s", resp.Status)
	}
	return nil
}
