package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
)

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8080", "Domino agent base URL")
	timeout := flag.Duration("timeout", 6*time.Minute, "Request timeout")
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}
	c := newClient(*addr, *timeout)
	cmd := flag.Arg(0)
	switch cmd {
	case "apps":
		os.Exit(c.do(http.MethodGet, "/v1/apps"))
	case "deploy":
		app := needApp()
		path := "/v1/lifecycle/" + app + "/deploy"
		if flag.NArg() > 2 {
			path += "/" + flag.Arg(2)
		}
		os.Exit(c.do(http.MethodPut, path))
	case "start", "restart":
		os.Exit(c.do(http.MethodPut, "/v1/lifecycle/"+needApp()+"/"+cmd))
	case "stop":
		os.Exit(c.do(http.MethodDelete, "/v1/lifecycle/"+needApp()+"/stop"))
	case "info":
		os.Exit(c.do(http.MethodGet, "/v1/lifecycle/"+needApp()+"/info"))
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("dominoctl [--addr URL] <command> [args]")
	fmt.Println("commands:")
	fmt.Println("  apps                     List registered apps and their last status")
	fmt.Println("  deploy <app> [version]   Deploy a version (newest when omitted)")
	fmt.Println("  start <app>              Start an app")
	fmt.Println("  stop <app>               Stop an app")
	fmt.Println("  restart <app>            Restart an app")
	fmt.Println("  info <app>               Query the app info endpoint")
}

func needApp() string {
	if flag.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "missing app name")
		os.Exit(2)
	}
	return strings.Trim(flag.Arg(1), "/")
}

type client struct {
	base string
	http *retryablehttp.Client
}

func newClient(base string, timeout time.Duration) *client {
	hc := retryablehttp.NewClient()
	hc.Logger = nil
	hc.RetryMax = 2
	hc.HTTPClient.Timeout = timeout
	hc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	// lifecycle calls are not idempotent; only retry when the agent is unreachable
	hc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return err != nil, nil
	}
	return &client{base: strings.TrimRight(base, "/"), http: hc}
}

// do prints the answer and returns the process exit code.
func (c *client) do(method, path string) int {
	req, err := retryablehttp.NewRequest(method, c.base+path, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	resp, err := c.http.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	var out bytes.Buffer
	if json.Indent(&out, body, "", "  ") == nil {
		fmt.Println(out.String())
	} else {
		os.Stdout.Write(body)
	}
	if resp.StatusCode >= 400 {
		if st := gjson.GetBytes(body, "status"); st.Exists() {
			fmt.Fprintf(os.Stderr, "%s (%d)\n", st.String(), resp.StatusCode)
		}
		return 1
	}
	return 0
}
