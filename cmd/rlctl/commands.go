package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"rlregistry/internal/revocation/models"
	"rlregistry/pkg/platform/httputil"
)

var errUsage = errors.New("wrong number of arguments")

type client struct {
	base  string
	token string
	http  *http.Client
}

func newClient(c *cli.Context) *client {
	return &client{
		base:  strings.TrimRight(c.String(addrFlag.Name), "/"),
		token: c.String(tokenFlag.Name),
		http:  &http.Client{Timeout: 10 * time.Second},
	}
}

func registerCmd(c *cli.Context) error {
	if c.NArg() != 1 {
		return errUsage
	}
	id := c.Args().Get(0)
	return newClient(c).do(c, http.MethodPost, "/lists", models.RegisterListRequest{ID: id}, nil)
}

func setCmd(c *cli.Context) error {
	if c.NArg() != 1 {
		return errUsage
	}
	set, err := parseIndices(c.String(setFlag.Name))
	if err != nil {
		return fmt.Errorf("--set: %w", err)
	}
	clear, err := parseIndices(c.String(clearFlag.Name))
	if err != nil {
		return fmt.Errorf("--clear: %w", err)
	}
	body := models.UpdateBitsRequest{Set: set, Clear: clear}
	return newClient(c).do(c, http.MethodPost, listPath(c.Args().Get(0), "bits"), body, nil)
}

func getCmd(c *cli.Context) error {
	if c.NArg() != 2 {
		return errUsage
	}
	index, err := strconv.Atoi(c.Args().Get(1))
	if err != nil {
		return fmt.Errorf("index must be an integer: %w", err)
	}
	var out models.BitResponse
	path := listPath(c.Args().Get(0), "bits", strconv.Itoa(index))
	if err := newClient(c).do(c, http.MethodGet, path, nil, &out); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, out.Revoked)
	return nil
}

func encodedCmd(c *cli.Context) error {
	if c.NArg() != 1 {
		return errUsage
	}
	var out models.ListResponse
	if err := newClient(c).do(c, http.MethodGet, listPath(c.Args().Get(0)), nil, &out); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, out.EncodedList)
	return nil
}

func replaceCmd(c *cli.Context) error {
	if c.NArg() != 2 {
		return errUsage
	}
	body := models.ReplaceListRequest{EncodedList: c.Args().Get(1)}
	return newClient(c).do(c, http.MethodPut, listPath(c.Args().Get(0)), body, nil)
}

func (cl *client) do(c *cli.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(c.Context, method, cl.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.token != "" {
		req.Header.Set("Authorization", "Bearer "+cl.token)
	}

	resp, err := cl.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr httputil.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Error == "" {
			return fmt.Errorf("%s %s: %s", method, path, resp.Status)
		}
		if apiErr.ErrorDescription != "" {
			return fmt.Errorf("%s: %s", apiErr.Error, apiErr.ErrorDescription)
		}
		return errors.New(apiErr.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// listPath escapes the id so ids containing '/' stay one path segment.
func listPath(id string, rest ...string) string {
	parts := append([]string{"", "lists", url.PathEscape(id)}, rest...)
	return strings.Join(parts, "/")
}

// parseIndices turns "1, 2,3" into []int{1, 2, 3}. Range checks are left to the server.
func parseIndices(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	fields := strings.Split(raw, ",")
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("invalid index %q", f)
		}
		out = append(out, n)
	}
	return out, nil
}
