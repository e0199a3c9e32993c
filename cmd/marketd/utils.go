package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tokenmarket/marketd/internal/interface/http/handlers"
	"github.com/tokenmarket/marketd/internal/interface/http/middlewares"
	"github.com/urfave/cli/v2"
)

type apiError struct {
	middlewares.ErrorResponse
}

func (e apiError) Error() string {
	if len(e.Metadata) <= 0 {
		return e.Message
	}
	buf, _ := json.Marshal(e.Metadata)
	return fmt.Sprintf("%s %s", e.Message, buf)
}

type client struct {
	url    string
	caller string
	http   *http.Client
}

func newClient(ctx *cli.Context) *client {
	return &client{
		url:    strings.TrimRight(flagOrEnv(ctx, urlFlagName), "/"),
		caller: flagOrEnv(ctx, callerFlagName),
		http:   &http.Client{Timeout: timeout},
	}
}

func (c *client) requireCaller() error {
	if c.caller == "" {
		return fmt.Errorf("missing caller, set --%s or MARKETD_CALLER", callerFlagName)
	}
	if !common.IsHexAddress(c.caller) {
		return fmt.Errorf("invalid caller address %s", c.caller)
	}
	return nil
}

func get[T any](c *client, path string) (result T, err error) {
	req, err := http.NewRequest("GET", c.url+path, nil)
	if err != nil {
		return
	}
	return do[T](c, req)
}

func post[T any](c *client, path string, body any) (result T, err error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return
	}
	req, err := http.NewRequest("POST", c.url+path, bytes.NewReader(buf))
	if err != nil {
		return
	}
	req.Header.Add("Content-Type", "application/json")
	return do[T](c, req)
}

func do[T any](c *client, req *http.Request) (result T, err error) {
	if c.caller != "" {
		req.Header.Add(handlers.CallerHeader, c.caller)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return
	}
	// nolint
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := apiError{}
		if jsonErr := json.Unmarshal(buf, &apiErr); jsonErr != nil || apiErr.Name == "" {
			err = fmt.Errorf("request failed with status %d: %s", resp.StatusCode, buf)
			return
		}
		err = apiErr
		return
	}

	err = json.Unmarshal(buf, &result)
	return
}

func printJSON(v any) error {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(buf))
	return nil
}
