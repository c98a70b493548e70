// Copyright 2025 Dominik Schlosser
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package output pretty-prints the demo CLI's results to the
// terminal. Adapted from the teacher's internal/output/printer.go: the
// section/field printers and color palette are kept, retargeted from
// SD-JWT/mdoc token dumps to offers, token responses, and credential
// responses.
package output

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/dominikschlosser/oid4vci-core/credential"
	"github.com/dominikschlosser/oid4vci-core/metadata"
	"github.com/dominikschlosser/oid4vci-core/oauth2client"
	"github.com/dominikschlosser/oid4vci-core/offer"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	labelColor   = color.New(color.FgYellow)
	dimColor     = color.New(color.Faint)
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
)

// Options controls how a result is rendered.
type Options struct {
	JSON    bool
	Verbose bool
}

// PrintOffer renders a resolved credential offer.
func PrintOffer(o *offer.CredentialOffer, opts Options) {
	if opts.JSON {
		PrintJSON(o)
		return
	}
	headerColor.Println("Credential Offer")
	printRule()
	printField("Issuer", o.CredentialIssuer)
	printField("Configuration IDs", strings.Join(o.CredentialConfigurationIDs, ", "))
	for _, kind := range o.GrantKinds() {
		g := o.Grants[kind]
		switch kind {
		case offer.GrantPreAuthorizedCode:
			printField("Grant", "pre-authorized_code")
			printField("Pre-authorized code", g.PreAuthorizedCode)
			if g.TxCode != nil {
				printField("Transaction code required", "yes")
			}
		case offer.GrantAuthorizationCode:
			printField("Grant", "authorization_code")
			if g.IssuerState != "" {
				printField("Issuer state", g.IssuerState)
			}
		}
	}
}

// PrintAuthorizationServerMetadata renders resolved AS metadata.
func PrintAuthorizationServerMetadata(as *metadata.AuthorizationServerMetadata, opts Options) {
	if opts.JSON {
		PrintJSON(as)
		return
	}
	headerColor.Println("Authorization Server")
	printRule()
	printField("Issuer", as.Issuer)
	printField("Token endpoint", as.TokenEndpoint)
	if as.PushedAuthorizationRequestEndpoint != "" {
		printField("PAR endpoint", as.PushedAuthorizationRequestEndpoint)
	}
	if as.AuthorizationChallengeEndpoint != "" {
		printField("Authorization challenge endpoint", as.AuthorizationChallengeEndpoint)
	}
	if len(as.CodeChallengeMethodsSupported) > 0 {
		printField("PKCE methods", strings.Join(as.CodeChallengeMethodsSupported, ", "))
	}
}

// PrintTokenResult renders an acquired access token.
func PrintTokenResult(t *oauth2client.TokenResult, opts Options) {
	if opts.JSON {
		PrintJSON(t)
		return
	}
	headerColor.Println("Access Token")
	printRule()
	printField("Token type", t.AccessTokenResponse.TokenType)
	if opts.Verbose {
		printField("Access token", t.AccessTokenResponse.AccessToken)
	} else {
		printField("Access token", truncate(t.AccessTokenResponse.AccessToken))
	}
	printField("Expires in", fmt.Sprintf("%ds", t.AccessTokenResponse.ExpiresIn))
	if t.AccessTokenResponse.CNonce != "" {
		printField("c_nonce", t.AccessTokenResponse.CNonce)
	}
	if t.DPoP.Nonce != "" {
		printField("DPoP nonce", t.DPoP.Nonce)
	}
}

// PrintCredentialResponse renders a received credential response.
func PrintCredentialResponse(r *credential.Response, opts Options) {
	if opts.JSON {
		PrintJSON(r)
		return
	}
	headerColor.Println("Credential Response")
	printRule()
	if r.Format != "" {
		printField("Format", string(r.Format))
	}
	if r.Credential != nil {
		printSection("Credential")
		printValue(r.Credential, 1)
	}
	for i, c := range r.Credentials {
		printSection(fmt.Sprintf("Credential %d", i+1))
		printValue(c, 1)
	}
	if r.NotificationID != "" {
		printField("Notification ID", r.NotificationID)
	}
	if r.CNonce != "" {
		printField("Next c_nonce", r.CNonce)
	}
}

// PrintSuccess prints a one-line success message.
func PrintSuccess(msg string) { successColor.Println("✓ " + msg) }

// PrintError prints a one-line error message.
func PrintError(err error) { errorColor.Printf("✗ %v\n", err) }

func printRule()                     { dimColor.Println(strings.Repeat("─", 50)) }
func printSection(title string)      { labelColor.Printf("  %s:\n", title) }
func printField(label string, v any) { labelColor.Printf("  %s: ", label); fmt.Println(formatValue(v)) }

func printValue(v any, indent int) {
	switch val := v.(type) {
	case map[string]any:
		printMap(val, indent)
	default:
		fmt.Printf("%s%s\n", strings.Repeat("  ", indent), formatValue(v))
	}
}

func printMap(m map[string]any, indent int) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	prefix := strings.Repeat("  ", indent)
	for _, k := range keys {
		fmt.Printf("%s%s: %s\n", prefix, k, formatValue(m[k]))
	}
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

func truncate(s string) string {
	if len(s) <= 24 {
		return s
	}
	return s[:12] + "…" + s[len(s)-8:]
}
