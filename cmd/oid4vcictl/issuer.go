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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dominikschlosser/oid4vci-core/callback"
	"github.com/dominikschlosser/oid4vci-core/credential"
	"github.com/dominikschlosser/oid4vci-core/jwkutil"
	"github.com/dominikschlosser/oid4vci-core/notify"
	"github.com/dominikschlosser/oid4vci-core/oauth2server"
	"github.com/dominikschlosser/oid4vci-core/oiderr"
	"github.com/dominikschlosser/oid4vci-core/resource"
	"github.com/dominikschlosser/oid4vci-core/schema"

	"github.com/dominikschlosser/oid4vci-core/internal/adapter"
	"github.com/dominikschlosser/oid4vci-core/internal/output"
	"github.com/dominikschlosser/oid4vci-core/internal/store"
)

// issuerServer bundles the in-memory demo issuer/authorization-server/
// resource-server a wallet can be pointed at end to end for the
// pre-authorized code flow (optionally DPoP-bound); it serves no
// authorization-code, PAR or authorization-challenge endpoints. It holds one configuration ID,
// one signing key, and no persistence across restarts - the teacher's
// WalletStore writes to disk because a wallet must survive a restart;
// a disposable demo issuer has nothing worth keeping.
type issuerServer struct {
	baseURL  string
	cb       callback.Callbacks
	ring     *adapter.KeyRing
	store    *store.IssuerStore
	signer   callback.Signer
	configID string
	config   credentialConfig
}

type credentialConfig struct {
	Format  string
	VCT     string
	Doctype string
}

func issuerCmd() *cobra.Command {
	var (
		addr     string
		configID string
		format   string
		vct      string
	)

	cmd := &cobra.Command{
		Use:   "issuer",
		Short: "Run an in-memory demo issuer, authorization server, and resource server",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the credential, token, and well-known endpoints",
		Long:  "Starts an HTTP server implementing spec.md's issuer+authorization-server+resource-server roles against an in-memory store, for exercising the wallet commands against a real endpoint rather than a remote issuer.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ring := adapter.NewKeyRing()
			cb := adapter.Callbacks(ring, nil)
			pub, err := ring.Generate("issuer-signing-key")
			if err != nil {
				return fmt.Errorf("generating issuer signing key: %w", err)
			}

			srv := &issuerServer{
				baseURL:  "http://" + addr,
				cb:       cb,
				ring:     ring,
				store:    store.NewIssuerStore(),
				signer:   callback.Signer{Kind: callback.SignerJWK, PublicJWK: pub, Alg: "ES256", KeyID: "issuer-signing-key"},
				configID: configID,
				config:   credentialConfig{Format: format, VCT: vct},
			}

			mux := http.NewServeMux()
			srv.registerRoutes(mux)
			output.PrintSuccess(fmt.Sprintf("issuer listening on %s", srv.baseURL))
			return http.ListenAndServe(addr, mux)
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", "localhost:8085", "address to listen on")
	serveCmd.Flags().StringVar(&configID, "config-id", "demoCredential", "credential_configuration_id this issuer offers")
	serveCmd.Flags().StringVar(&format, "format", string(credential.FormatSDJWTVC), "credential format of the offered configuration")
	serveCmd.Flags().StringVar(&vct, "vct", "urn:eu.europa.ec.eudi:demo:1", "vct value when format is vc+sd-jwt")
	cmd.AddCommand(serveCmd)
	return cmd
}

func init() {
	rootCmd.AddCommand(issuerCmd())
}

func (s *issuerServer) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/.well-known/openid-credential-issuer", s.handleIssuerMetadata)
	mux.HandleFunc("/.well-known/oauth-authorization-server", s.handleAuthorizationServerMetadata)
	mux.HandleFunc("/offer", s.handleMintOffer)
	mux.HandleFunc("/token", s.handleToken)
	mux.HandleFunc("/credential", s.handleCredential)
	mux.HandleFunc("/notification", s.handleNotification)
}

func (s *issuerServer) handleIssuerMetadata(w http.ResponseWriter, r *http.Request) {
	configs := map[string]map[string]any{
		s.configID: {
			"format": s.config.Format,
			"vct":    s.config.VCT,
		},
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"credential_issuer":                    s.baseURL,
		"credential_endpoint":                  s.baseURL + "/credential",
		"notification_endpoint":                s.baseURL + "/notification",
		"authorization_servers":                []string{s.baseURL},
		"credential_configurations_supported":  configs,
	})
}

func (s *issuerServer) handleAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                s.baseURL,
		"token_endpoint":                        s.baseURL + "/token",
		"code_challenge_methods_supported":      []string{"S256"},
		"dpop_signing_alg_values_supported":     []string{"ES256"},
	})
}

// handleMintOffer is a demo-only convenience (not a spec.md endpoint):
// it hands the caller a pre-authorized_code offer URL to feed straight
// into "oid4vcictl wallet run".
func (s *issuerServer) handleMintOffer(w http.ResponseWriter, r *http.Request) {
	code := uuid.NewString()
	s.store.PutPreAuthorizedGrant(&store.PreAuthorizedGrant{
		Code:                code,
		CredentialConfigIDs: []string{s.configID},
	})

	offerJSON, err := json.Marshal(map[string]any{
		"credential_issuer":            s.baseURL,
		"credential_configuration_ids": []string{s.configID},
		"grants": map[string]any{
			"urn:ietf:params:oauth:grant-type:pre-authorized_code": map[string]any{
				"pre-authorized_code": code,
			},
		},
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	v := url.Values{}
	v.Set("credential_offer", string(offerJSON))
	writeJSON(w, http.StatusOK, map[string]any{
		"offer_url": "openid-credential-offer://?" + v.Encode(),
	})
}

func (s *issuerServer) handleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "invalid_request", "POST required")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	req, err := oauth2server.ParseAccessTokenRequest(r.Header, r.Form)
	if err != nil {
		writeOauth2Err(w, err)
		return
	}

	var grant *store.PreAuthorizedGrant
	switch req.GrantType {
	case oauth2server.GrantTypePreAuthorizedCode:
		grant = s.store.LookupPreAuthorizedGrant(req.PreAuthorizedCode)
		if grant == nil {
			writeError(w, http.StatusBadRequest, "invalid_grant", "unknown pre-authorized_code")
			return
		}
		if err := oauth2server.VerifyPreAuthorizedCodeAccessTokenRequest(ctx, req, oauth2server.ExpectedPreAuthorizedCode{
			Code:   grant.Code,
			TxCode: grant.TxCode,
		}, schema.ConstantTimeEqual); err != nil {
			writeOauth2Err(w, err)
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "unsupported_grant_type", "demo issuer only supports pre-authorized_code")
		return
	}
	if grant.Redeemed {
		writeError(w, http.StatusBadRequest, "invalid_grant", "code already redeemed")
		return
	}
	grant.Redeemed = true

	dpopThumbprint, err := oauth2server.ExtractDPoPBinding(ctx, s.cb, req.DPoPProof, http.MethodPost, s.baseURL+"/token")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_dpop_proof", err.Error())
		return
	}

	cNonce := uuid.NewString()
	token, err := oauth2server.CreateAccessTokenJWT(ctx, s.cb, oauth2server.CreateAccessTokenJWTParams{
		Signer:         s.signer,
		Issuer:         s.baseURL,
		Subject:        "demo-holder",
		Audience:       s.baseURL,
		ExpiresIn:      time.Hour,
		DPoPThumbprint: dpopThumbprint,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	s.store.PutAccessToken(token, dpopThumbprint, grant.CredentialConfigIDs)
	s.store.SetCNonce(token, cNonce)

	resp := oauth2server.CreateAccessTokenResponse(oauth2server.CreateAccessTokenResponseParams{
		AccessToken:     token,
		ExpiresIn:       time.Hour,
		CNonce:          cNonce,
		CNonceExpiresIn: 5 * time.Minute,
		DPoPBound:       dpopThumbprint != "",
	})
	writeJSON(w, http.StatusOK, resp)
}

func (s *issuerServer) verifyAccessToken(ctx context.Context, compact string) (map[string]any, error) {
	parts, err := jwkutil.ParseCompact(compact)
	if err != nil {
		return nil, err
	}
	result, err := s.cb.VerifyJWT(ctx, s.signer, callback.VerifyInput{Compact: compact, Header: parts.Header, Payload: parts.Payload})
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return nil, fmt.Errorf("access token signature invalid")
	}
	return parts.Payload, nil
}

func (s *issuerServer) handleCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "invalid_request", "POST required")
		return
	}

	body, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req, err := credential.ParseRequest(body)
	if err != nil {
		writeOauth2Err(w, err)
		return
	}

	if _, err := resource.VerifyResourceRequest(ctx, s.cb, resource.VerifyResourceRequestParams{
		Header:            r.Header,
		Method:            http.MethodPost,
		URL:               s.baseURL + "/credential",
		Issuer:            s.baseURL,
		Audience:          s.baseURL,
		VerifyAccessToken: s.verifyAccessToken,
	}); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_token", err.Error())
		return
	}

	token, _, err := bearerOrDPoPToken(r.Header)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_token", err.Error())
		return
	}

	credentialIDs, known := s.store.AccessTokenCredentialIDs(token)
	if !known {
		writeError(w, http.StatusUnauthorized, "invalid_token", "unknown access token")
		return
	}
	if req.Identifier.CredentialIdentifier != "" {
		if !containsString(credentialIDs, req.Identifier.CredentialIdentifier) {
			writeError(w, http.StatusForbidden, "invalid_credential_request", "access token not scoped to this credential")
			return
		}
	}

	expectedNonce := s.store.CNonce(token)
	if req.Proof == nil {
		writeError(w, http.StatusBadRequest, "invalid_proof", "proofs batch form not supported by the demo issuer")
		return
	}
	verified, err := credential.VerifyRequestProof(ctx, s.cb, credential.VerifyRequestProofParams{
		JWT:           req.Proof.JWT,
		Issuer:        s.baseURL,
		ExpectedNonce: expectedNonce,
	})
	if err != nil {
		writeOauth2Err(w, err)
		return
	}

	holderJKT, err := jwkThumbprint(verified.Signer.PublicJWK)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	payload := fmt.Sprintf("demo-credential issued to holder key %s", holderJKT)
	notificationID := uuid.NewString()
	nextNonce := uuid.NewString()
	s.store.SetCNonce(token, nextNonce)

	resp := credential.CreateResponse(credential.CreateResponseParams{
		Credential:      payload,
		Format:          credential.Format(s.config.Format),
		CNonce:          nextNonce,
		CNonceExpiresIn: 300,
		NotificationID:  notificationID,
	})
	writeJSON(w, http.StatusOK, resp)
}

func (s *issuerServer) handleNotification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "invalid_request", "POST required")
		return
	}
	var body struct {
		NotificationID string `json:"notification_id"`
		Event          string `json:"event"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_notification_request", err.Error())
		return
	}
	if s.store.SeenNotification(body.NotificationID) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	output.PrintSuccess(fmt.Sprintf("received %s notification for %s", notify.Event(body.Event), body.NotificationID))
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, desc string) {
	writeJSON(w, status, oiderr.ErrorEnvelope{Error: code, ErrorDescription: desc})
}

func writeOauth2Err(w http.ResponseWriter, err error) {
	if svcErr, ok := err.(*oiderr.Oauth2ServerErrorResponseError); ok {
		writeJSON(w, http.StatusBadRequest, svcErr.Envelope)
		return
	}
	writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
}

func containsString(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

func bearerOrDPoPToken(header http.Header) (token string, scheme resourceScheme, err error) {
	authz := header.Get("Authorization")
	switch {
	case len(authz) > len("DPoP ") && authz[:5] == "DPoP ":
		return authz[5:], schemeDPoP, nil
	case len(authz) > len("Bearer ") && authz[:7] == "Bearer ":
		return authz[7:], schemeBearer, nil
	default:
		return "", "", fmt.Errorf("missing or unsupported Authorization header")
	}
}

type resourceScheme string

const (
	schemeBearer resourceScheme = "Bearer"
	schemeDPoP   resourceScheme = "DPoP"
)

func jwkThumbprint(jwk map[string]any) (string, error) {
	return jwkutil.Thumbprint(jwk)
}
