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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dominikschlosser/oid4vci-core/callback"
	"github.com/dominikschlosser/oid4vci-core/credential"
	"github.com/dominikschlosser/oid4vci-core/metadata"
	"github.com/dominikschlosser/oid4vci-core/notify"
	"github.com/dominikschlosser/oid4vci-core/oauth2client"
	"github.com/dominikschlosser/oid4vci-core/offer"

	"github.com/dominikschlosser/oid4vci-core/internal/adapter"
	"github.com/dominikschlosser/oid4vci-core/internal/output"
	"github.com/dominikschlosser/oid4vci-core/internal/qr"
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Resolve offers and run the OID4VCI client flow",
}

func init() {
	walletCmd.AddCommand(walletOfferCmd())
	walletCmd.AddCommand(walletRunCmd())
	rootCmd.AddCommand(walletCmd)
}

// --- wallet offer ---

func walletOfferCmd() *cobra.Command {
	var qrPath string

	cmd := &cobra.Command{
		Use:   "offer [url]",
		Short: "Resolve and print a credential offer",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uri, err := offerURI(args, qrPath)
			if err != nil {
				return err
			}

			cb := adapter.Callbacks(adapter.NewKeyRing(), nil)
			o, err := offer.Resolve(cmd.Context(), cb.Fetch, uri)
			if err != nil {
				return err
			}
			output.PrintOffer(o, opts())
			return nil
		},
	}
	cmd.Flags().StringVar(&qrPath, "qr", "", "read the offer URL from a QR code image instead of an argument")
	return cmd
}

func offerURI(args []string, qrPath string) (string, error) {
	if qrPath != "" {
		return qr.ScanFile(qrPath)
	}
	if len(args) == 1 {
		return args[0], nil
	}
	return "", fmt.Errorf("provide either an offer URL argument or --qr <image>")
}

// --- wallet run ---

func walletRunCmd() *cobra.Command {
	var (
		qrPath  string
		txCode  string
		useDPoP bool
		inspect bool
	)

	cmd := &cobra.Command{
		Use:   "run [offer-url]",
		Short: "Resolve an offer, acquire a token, request the credential, and notify the issuer",
		Long:  "Runs the full pre-authorized-code issuance flow end to end, matching spec.md's end-to-end scenario 1/5: resolve offer, discover metadata, acquire an access token, request the credential, and send a credential_accepted notification.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			uri, err := offerURI(args, qrPath)
			if err != nil {
				return err
			}

			ring := adapter.NewKeyRing()
			cb := adapter.Callbacks(ring, nil)

			o, err := offer.Resolve(ctx, cb.Fetch, uri)
			if err != nil {
				return fmt.Errorf("resolving offer: %w", err)
			}
			output.PrintOffer(o, opts())

			grant, ok := o.Grants[offerGrantKind(o)]
			if !ok {
				return fmt.Errorf("offer carries no supported grant")
			}

			resolved, err := metadata.Resolve(ctx, cb.Fetch, o.CredentialIssuer)
			if err != nil {
				return fmt.Errorf("resolving metadata: %w", err)
			}

			as := resolved.AuthorizationServers[0]
			output.PrintAuthorizationServerMetadata(&as, opts())

			var dpopSigner *callback.Signer
			if useDPoP {
				pub, err := ring.Generate("wallet-dpop")
				if err != nil {
					return fmt.Errorf("generating dpop key: %w", err)
				}
				dpopSigner = &callback.Signer{Kind: callback.SignerJWK, PublicJWK: pub, Alg: "ES256", KeyID: "wallet-dpop"}
			}

			tokenResult, err := oauth2client.RetrievePreAuthorizedCodeAccessToken(ctx, cb, oauth2client.RetrievePreAuthorizedCodeAccessTokenParams{
				AuthorizationServer: as,
				PreAuthorizedCode:   grant.PreAuthorizedCode,
				TxCode:              txCode,
				DPoPSigner:          dpopSigner,
			})
			if err != nil {
				return fmt.Errorf("acquiring access token: %w", err)
			}
			output.PrintTokenResult(tokenResult, opts())

			configID := o.CredentialConfigurationIDs[0]
			config := resolved.CredentialIssuer.CredentialConfigurationsSupported[configID]

			holderPub, err := ring.Generate("wallet-holder")
			if err != nil {
				return fmt.Errorf("generating holder key: %w", err)
			}
			holderSigner := callback.Signer{Kind: callback.SignerJWK, PublicJWK: holderPub, Alg: "ES256", KeyID: "wallet-holder"}

			proof, err := credential.CreateRequestProof(ctx, cb, credential.RequestProofOptions{
				Signer: holderSigner,
				Issuer: o.CredentialIssuer,
				CNonce: tokenResult.AccessTokenResponse.CNonce,
			})
			if err != nil {
				return fmt.Errorf("creating proof of possession: %w", err)
			}

			resp, err := requestCredential(ctx, cb, resolved.CredentialIssuer.CredentialEndpoint, tokenResult, config, proof)
			if err != nil {
				return fmt.Errorf("requesting credential: %w", err)
			}
			output.PrintCredentialResponse(resp, opts())

			if inspect {
				inspectCredentialResponse(resp)
			}

			if resolved.CredentialIssuer.NotificationEndpoint != "" && resp.NotificationID != "" {
				err := notify.Send(ctx, cb, notify.SendParams{
					NotificationEndpoint: resolved.CredentialIssuer.NotificationEndpoint,
					NotificationID:       resp.NotificationID,
					Event:                notify.EventCredentialAccepted,
					AccessToken:          tokenResult.AccessTokenResponse.AccessToken,
					DPoPSigner:           dpopSigner,
					DPoPNonce:            tokenResult.DPoP.Nonce,
				})
				if err != nil {
					return fmt.Errorf("sending notification: %w", err)
				}
				output.PrintSuccess("notified issuer of credential_accepted")
			}

			return nil
		},
	}
	cmd.Flags().StringVar(&qrPath, "qr", "", "read the offer URL from a QR code image instead of an argument")
	cmd.Flags().StringVar(&txCode, "tx-code", "", "transaction code (user PIN) if the offer requires one")
	cmd.Flags().BoolVar(&useDPoP, "dpop", false, "sender-constrain the access token with DPoP")
	cmd.Flags().BoolVar(&inspect, "inspect", false, "print the raw received credential without validating its content")
	return cmd
}

func offerGrantKind(o *offer.CredentialOffer) offer.GrantKind {
	if kinds := o.GrantKinds(); len(kinds) > 0 {
		return kinds[len(kinds)-1] // prefer pre-authorized_code when both are present
	}
	return ""
}

func opts() output.Options {
	return output.Options{JSON: jsonOutput, Verbose: verbose}
}
