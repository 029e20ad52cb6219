// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//  http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.


// Package cmd implements the minicouch command line tool.
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"

	"github.com/go-kivik/minicouch"
	"github.com/go-kivik/minicouch/chttp"
	"github.com/go-kivik/minicouch/cmd/minicouch/config"
	"github.com/go-kivik/minicouch/cmd/minicouch/errors"
	"github.com/go-kivik/minicouch/cmd/minicouch/log"
	"github.com/go-kivik/minicouch/cmd/minicouch/output"
	"github.com/go-kivik/minicouch/cmd/minicouch/output/json"
	"github.com/go-kivik/minicouch/cmd/minicouch/output/raw"
	"github.com/go-kivik/minicouch/cmd/minicouch/output/yaml"
)

const cliUserAgent = "minicouch-cli"

type root struct {
	debug bool
	log   log.Logger
	conf  *config.Config
	cmd   *cobra.Command
	fmt   *output.Formatter

	requestTimeout       string
	parsedRequestTimeout time.Duration
	rateLimit            float64
	rateBurst            int

	trace   *chttp.ClientTrace
	verbose bool

	// retry attempts
	retryCount         int
	retryDelay         string
	retryTimeout       string
	retryDelayParsed   time.Duration
	retryTimeoutParsed time.Duration

	// transport, when set, replaces the default HTTP transport.
	transport http.RoundTripper
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) {
	lg := log.New()
	root := rootCmd(lg)
	os.Exit(root.execute(ctx))
}

func (r *root) execute(ctx context.Context) int {
	r.log.SetOut(r.cmd.OutOrStdout())
	r.log.SetErr(r.cmd.ErrOrStderr())
	ctx = chttp.WithClientTrace(ctx, r.clientTrace())
	err := r.cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	r.log.Errorf("Error: %s", err)
	return extractExitCode(err)
}

func extractExitCode(err error) int {
	if code := errors.InspectErrorCode(err); code != 0 {
		return code
	}

	// Any unhandled errors are assumed to be from Cobra, so return a "failed
	// to initialize" error
	return errors.ErrUsage
}

func formatter() *output.Formatter {
	f := output.New()
	f.Register("json", json.New())
	f.Register("raw", raw.New())
	f.Register("yaml", yaml.New())
	return f
}

func rootCmd(lg log.Logger) *root {
	r := &root{
		log:  lg,
		fmt:  formatter(),
		conf: config.New(),
	}
	r.cmd = &cobra.Command{
		Use:               "minicouch",
		Short:             "minicouch sends requests to a CouchDB server",
		Long:              `This tool sends arbitrary requests to CouchDB's HTTP API, and prints the responses`,
		PersistentPreRunE: r.init,
		SilenceErrors:     true,
	}

	pf := r.cmd.PersistentFlags()

	r.conf.BindFlags(pf)
	r.fmt.ConfigFlags(pf)
	pf.BoolVar(&r.debug, "debug", false, "Enable debug output")
	pf.BoolVarP(&r.verbose, "verbose", "v", false, "Output bi-directional network traffic")
	pf.IntVar(&r.retryCount, "retry", 0, "In case of transient error, retry up to this many times. A negative value retries forever.")
	pf.StringVar(&r.retryDelay, "retry-delay", "", "Delay between retry attempts. Disables the default exponential backoff algorithm.")
	pf.StringVar(&r.retryTimeout, "retry-timeout", "", "When used with --retry, no more retries will be attempted after this timeout.")
	pf.StringVar(&r.requestTimeout, "request-timeout", "", "The time limit for each request.")
	pf.Float64Var(&r.rateLimit, "rate-limit", 0, "Maximum requests per second. 0 disables the limit.")
	pf.IntVar(&r.rateBurst, "rate-burst", 1, "Requests permitted in a single burst, when --rate-limit is set.")

	for _, method := range []string{
		http.MethodGet,
		http.MethodHead,
		http.MethodPut,
		http.MethodPost,
		http.MethodDelete,
	} {
		r.cmd.AddCommand(requestCmd(r, method))
	}
	r.cmd.AddCommand(loginCmd(r))
	r.cmd.AddCommand(logoutCmd(r))
	r.cmd.AddCommand(sessionCmd(r))
	r.cmd.AddCommand(versionCmd(r))

	return r
}

func parseDuration(val string) (time.Duration, error) {
	if val == "" {
		return 0, nil
	}
	if d, err := strconv.ParseFloat(val, 64); err == nil {
		if d < 0 {
			return 0, errors.Code(errors.ErrUsage, "negative timeout not permitted")
		}
		return time.Duration(d * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, errors.Code(errors.ErrUsage, err)
	}
	if d < 0 {
		return 0, errors.Code(errors.ErrUsage, "negative timeout not permitted")
	}
	return d, nil
}

func (r *root) init(cmd *cobra.Command, _ []string) error {
	r.log.SetDebug(r.debug)

	r.log.Debug("Debug mode enabled")

	var err error
	r.parsedRequestTimeout, err = parseDuration(r.requestTimeout)
	if err != nil {
		return err
	}
	r.retryDelayParsed, err = parseDuration(r.retryDelay)
	if err != nil {
		return err
	}
	r.retryTimeoutParsed, err = parseDuration(r.retryTimeout)
	if err != nil {
		return err
	}

	if err := r.conf.Read(r.log); err != nil {
		return err
	}

	r.setTrace()
	cmd.SilenceUsage = true

	return nil
}

// client connects to the configured server.
func (r *root) client(options ...minicouch.Option) (*minicouch.Client, error) {
	dsn, err := r.conf.DSN()
	if err != nil {
		return nil, err
	}
	opts := []minicouch.Option{
		minicouch.OptionHTTPClient(&http.Client{
			Transport: r.transport,
			Timeout:   r.parsedRequestTimeout,
		}),
		minicouch.OptionUserAgent(cliUserAgent + "/" + minicouch.Version),
		minicouch.OptionRateLimit(r.rateLimit, r.rateBurst),
	}
	client, err := minicouch.New(dsn, append(opts, options...)...)
	if err != nil {
		return nil, errors.WithCode(err, errors.ErrUsage)
	}
	r.log.Debugf("DSN: %s", dsnURL(client).Redacted())
	return client, nil
}

// dsnURL parses the client's DSN, which may lack a scheme.
func dsnURL(client *minicouch.Client) *url.URL {
	dsn := client.DSN()
	if !strings.Contains(dsn, "://") {
		dsn = "http://" + dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		// minicouch.New has already parsed it.
		return &url.URL{}
	}
	return u
}

// retry calls fn until it succeeds, or the retry budget is spent. Client
// errors (4xx) are never retried.
func (r *root) retry(fn func() error) error {
	if r.retryCount == 0 {
		return fn()
	}
	var bo backoff.BackOff
	switch {
	case r.retryDelayParsed == 0 && r.retryDelay != "": // Disables retry delay
		bo = &backoff.ZeroBackOff{}
	case r.retryDelayParsed != 0:
		bo = backoff.NewConstantBackOff(r.retryDelayParsed)
	default:
		bo = backoff.NewExponentialBackOff()
	}
	if r.retryCount >= 0 {
		// WithMaxRetries really means WithMaxTries, so +1
		bo = backoff.WithMaxRetries(bo, uint64(r.retryCount+1))
	}
	if r.retryTimeoutParsed > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), r.retryTimeoutParsed)
		defer cancel()
		bo = backoff.WithContext(bo, ctx)
	}
	var count int
	var err error
	return backoff.Retry(func() error {
		if count > 0 {
			msg := fmt.Sprintf("Warning: Transient problem: %s.", err)
			switch nbo := bo.NextBackOff(); nbo {
			case backoff.Stop, 0:
			default:
				msg += fmt.Sprintf(" Will retry in %s.", fmtDuration(nbo))
			}
			if remain := r.retryCount - count; remain > 0 {
				msg += fmt.Sprintf(" %d retries left.", remain)
			}
			r.log.Error(msg)
		}
		count++
		err = fn()
		if status := minicouch.HTTPStatus(err); status >= 400 && status < 500 {
			return backoff.Permanent(err)
		}
		return err
	}, bo)
}

// nolint:gomnd
func fmtDuration(dur time.Duration) string {
	s := dur.Seconds()
	if s < 60 {
		return fmt.Sprintf("%0.2fs", s)
	}
	m := int(s / 60)
	s -= float64(m) * 60
	if m < 60 {
		return fmt.Sprintf("%dm%ds", m, int(s))
	}
	h := m / 60
	m -= h * 60
	if h < 24 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	d := h / 24
	h -= d * 24
	return fmt.Sprintf("%dd%dh%dm", d, h, m)
}
