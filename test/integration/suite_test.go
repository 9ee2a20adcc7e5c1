//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cucumber/godog"

	"github.com/ditto-display/ditto/internal/domain"
)

// testContext holds state shared across step definitions within a scenario.
type testContext struct {
	t       *testing.T
	harness *harness
	client  *http.Client

	response     *http.Response
	responseBody []byte

	// statuses and seen collect the responses of repeated card requests.
	statuses []int
	seen     map[string][]string

	syncResult domain.SyncResult
	syncErr    error
}

// newTestContext starts a fresh ditto instance for the scenario.
func newTestContext(t *testing.T) *testContext {
	return &testContext{
		t:       t,
		harness: newHarness(t),
		client:  &http.Client{Timeout: 30 * time.Second},
		seen:    make(map[string][]string),
	}
}

// InitializeScenario registers step definitions for each scenario.
func InitializeScenario(t *testing.T) func(*godog.ScenarioContext) {
	return func(ctx *godog.ScenarioContext) {
		var tc *testContext

		ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
			tc = newTestContext(t)
			return ctx, nil
		})

		ctx.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
			if tc != nil && tc.response != nil {
				tc.response.Body.Close()
			}

			return ctx, nil
		})

		ctx.Step(`^the service is running$`, func() error { return tc.theServiceIsRunning() })
		ctx.Step(`^the Notion database has pages:$`, func(table *godog.Table) error { return tc.theNotionDatabaseHasPages(table) })
		ctx.Step(`^the catalog is synced$`, func() error { return tc.theCatalogIsSynced() })
		ctx.Step(`^the catalog has been synced$`, func() error { return tc.theCatalogHasBeenSynced() })
		ctx.Step(`^the Notion page "([^"]*)" is deleted$`, func(id string) error { tc.harness.notion.dropPage(id); return nil })
		ctx.Step(`^the Notion API is failing$`, func() error { tc.harness.notion.setFailing(true); return nil })
		ctx.Step(`^the sync should report (\d+) synced, (\d+) skipped and (\d+) deleted$`,
			func(synced, skipped, deleted int) error { return tc.theSyncShouldReport(synced, skipped, deleted) })
		ctx.Step(`^the sync should fail$`, func() error { return tc.theSyncShouldFail() })

		ctx.Step(`^I request GET "([^"]*)"$`, func(path string) error { return tc.do(http.MethodGet, path, "") })
		ctx.Step(`^I request (POST|PATCH) "([^"]*)" with body:$`,
			func(method, path string, body *godog.DocString) error { return tc.do(method, path, body.Content) })
		ctx.Step(`^client "([^"]*)" requests "([^"]*)" (\d+) times?$`,
			func(client, path string, n int) error { return tc.clientRequests(client, path, n) })

		ctx.Step(`^the response status should be (\d+)$`, func(code int) error { return tc.theResponseStatusShouldBe(code) })
		ctx.Step(`^every response status should be (\d+)$`, func(code int) error { return tc.everyResponseStatusShouldBe(code) })
		ctx.Step(`^the response should contain "([^"]*)"$`, func(text string) error { return tc.theResponseShouldContain(text) })
		ctx.Step(`^the response header "([^"]*)" should be "([^"]*)"$`,
			func(name, value string) error { return tc.theResponseHeaderShouldBe(name, value) })
		ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`,
			func(path, value string) error { return tc.theResponseFieldShouldBe(path, value) })
		ctx.Step(`^the response field "([^"]*)" should not be empty$`,
			func(path string) error { return tc.theResponseFieldShouldNotBeEmpty(path) })
		ctx.Step(`^client "([^"]*)" should have seen (\d+) different quotes$`,
			func(client string, n int) error { return tc.clientShouldHaveSeen(client, n) })
		ctx.Step(`^client "([^"]*)" should have seen quote "([^"]*)" last$`,
			func(client, id string) error { return tc.clientShouldHaveSeenLast(client, id) })
	}
}

// theServiceIsRunning verifies the service is reachable.
func (tc *testContext) theServiceIsRunning() error {
	if err := tc.do(http.MethodGet, "/-/live", ""); err != nil {
		return fmt.Errorf("service is not running: %w", err)
	}

	return tc.theResponseStatusShouldBe(http.StatusOK)
}

// theNotionDatabaseHasPages loads a table with the columns id, quote,
// title, author, display and image. image is "photo", "broken" or empty.
func (tc *testContext) theNotionDatabaseHasPages(table *godog.Table) error {
	if len(table.Rows) < 2 {
		return errors.New("table needs a header row and at least one page")
	}

	header := make(map[string]int)
	for i, cell := range table.Rows[0].Cells {
		header[cell.Value] = i
	}

	cell := func(row int, name string) string {
		i, ok := header[name]
		if !ok {
			return ""
		}

		return table.Rows[row].Cells[i].Value
	}

	pages := make([]notionPage, 0, len(table.Rows)-1)
	for row := 1; row < len(table.Rows); row++ {
		p := notionPage{
			ID:     cell(row, "id"),
			Quote:  cell(row, "quote"),
			Title:  cell(row, "title"),
			Author: cell(row, "author"),
			Hidden: cell(row, "display") == "false",
		}

		switch cell(row, "image") {
		case "photo":
			p.ImageURL = tc.harness.images.URL(p.ID)
		case "broken":
			p.ImageURL = tc.harness.images.BrokenURL(p.ID)
		}

		pages = append(pages, p)
	}

	tc.harness.notion.setPages(pages...)

	return nil
}

func (tc *testContext) theCatalogIsSynced() error {
	tc.syncResult, tc.syncErr = tc.harness.sync.Run(context.Background())
	return nil
}

func (tc *testContext) theCatalogHasBeenSynced() error {
	_ = tc.theCatalogIsSynced()
	return tc.syncErr
}

func (tc *testContext) theSyncShouldReport(synced, skipped, deleted int) error {
	if tc.syncErr != nil {
		return fmt.Errorf("sync failed: %w", tc.syncErr)
	}

	want := domain.SyncResult{Synced: synced, Skipped: skipped, Deleted: deleted}
	got := tc.syncResult
	got.Appended = 0

	if got != want {
		return fmt.Errorf("expected sync result %+v, got %+v", want, tc.syncResult)
	}

	return nil
}

func (tc *testContext) theSyncShouldFail() error {
	if tc.syncErr == nil {
		return fmt.Errorf("expected sync to fail, got %+v", tc.syncResult)
	}

	return nil
}

// do sends a request to the service and keeps the response.
func (tc *testContext) do(method, path, body string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var reader io.Reader = http.NoBody
	if body != "" {
		reader = bytes.NewBufferString(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, tc.harness.server.URL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	if tc.response != nil {
		tc.response.Body.Close()
	}

	tc.response, err = tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	tc.responseBody, err = io.ReadAll(tc.response.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	return nil
}

// clientRequests fetches a card n times as client and records what it saw.
func (tc *testContext) clientRequests(client, path string, n int) error {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	for range n {
		if err := tc.do(http.MethodGet, path+sep+"client_override="+client, ""); err != nil {
			return err
		}

		tc.statuses = append(tc.statuses, tc.response.StatusCode)

		if id := tc.response.Header.Get("X-Quote-ID"); id != "" {
			tc.seen[client] = append(tc.seen[client], id)
		}
	}

	return nil
}

// theResponseStatusShouldBe asserts the response status code.
func (tc *testContext) theResponseStatusShouldBe(expectedCode int) error {
	if tc.response == nil {
		return errors.New("no response received")
	}

	if tc.response.StatusCode != expectedCode {
		return fmt.Errorf("expected status %d, got %d. Body: %s",
			expectedCode, tc.response.StatusCode, string(tc.responseBody))
	}

	return nil
}

func (tc *testContext) everyResponseStatusShouldBe(expectedCode int) error {
	if len(tc.statuses) == 0 {
		return errors.New("no card requests were made")
	}

	for i, code := range tc.statuses {
		if code != expectedCode {
			return fmt.Errorf("request %d: expected status %d, got %d", i+1, expectedCode, code)
		}
	}

	return nil
}

// theResponseShouldContain asserts the response body contains the given text.
func (tc *testContext) theResponseShouldContain(text string) error {
	if tc.responseBody == nil {
		return errors.New("no response body")
	}

	if body := string(tc.responseBody); !strings.Contains(body, text) {
		return fmt.Errorf("response body does not contain %q.\nBody: %s", text, body)
	}

	return nil
}

func (tc *testContext) theResponseHeaderShouldBe(name, value string) error {
	if tc.response == nil {
		return errors.New("no response received")
	}

	if got := tc.response.Header.Get(name); got != value {
		return fmt.Errorf("expected header %s %q, got %q", name, value, got)
	}

	return nil
}

// field walks a dotted path through the JSON body. Numeric segments index
// arrays.
func (tc *testContext) field(path string) (any, error) {
	var doc any
	if err := json.Unmarshal(tc.responseBody, &doc); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}

	cur := doc
	for _, key := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[key]
			if !ok {
				return nil, fmt.Errorf("field %q not found in %s", key, string(tc.responseBody))
			}

			cur = next
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(node) {
				return nil, fmt.Errorf("index %q out of range in %s", key, path)
			}

			cur = node[i]
		default:
			return nil, fmt.Errorf("cannot descend into %q at %s", key, path)
		}
	}

	return cur, nil
}

func (tc *testContext) theResponseFieldShouldBe(path, value string) error {
	got, err := tc.field(path)
	if err != nil {
		return err
	}

	if s := fmt.Sprint(got); s != value {
		return fmt.Errorf("expected %s to be %q, got %q", path, value, s)
	}

	return nil
}

func (tc *testContext) theResponseFieldShouldNotBeEmpty(path string) error {
	got, err := tc.field(path)
	if err != nil {
		return err
	}

	if got == nil || fmt.Sprint(got) == "" {
		return fmt.Errorf("expected %s to be set", path)
	}

	return nil
}

func (tc *testContext) clientShouldHaveSeen(client string, n int) error {
	distinct := make(map[string]struct{})
	for _, id := range tc.seen[client] {
		distinct[id] = struct{}{}
	}

	if len(distinct) != n {
		return fmt.Errorf("client %s saw %d different quotes, want %d: %v", client, len(distinct), n, tc.seen[client])
	}

	return nil
}

func (tc *testContext) clientShouldHaveSeenLast(client, id string) error {
	seen := tc.seen[client]
	if len(seen) == 0 {
		return fmt.Errorf("client %s has not seen any quote", client)
	}

	if last := seen[len(seen)-1]; last != id {
		return fmt.Errorf("client %s last saw %q, want %q", client, last, id)
	}

	return nil
}

// TestFeatures runs the GoDog BDD test suite.
func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario(t),
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"../features"},
			TestingT: t,
			Tags:     os.Getenv("GODOG_TAGS"),
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
