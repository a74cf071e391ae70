// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	apikeys "cloud.google.com/go/apikeys/apiv2"
	"cloud.google.com/go/apikeys/apiv2/apikeyspb"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/iterator"
)

// DefaultKeyName is the display name of the Maps key provisioned by our
// deployment scripts.
const DefaultKeyName = "MediQuery Geocoding Key"

// KeyLookup selects the Google Maps key to fetch through Application Default
// Credentials.
type KeyLookup struct {
	// DisplayName of the key in the API Keys console. Defaults to DefaultKeyName.
	DisplayName string
	// Project holding the key. Defaults to the credentials project, then
	// GOOGLE_CLOUD_PROJECT.
	Project string
}

// ResolveGoogleAPIKey returns the explicit key when set, otherwise fetches the
// key described by lookup.
func ResolveGoogleAPIKey(ctx context.Context, explicit string, lookup KeyLookup) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	if lookup.DisplayName == "" {
		lookup.DisplayName = DefaultKeyName
	}

	log.Printf("GOOGLE_MAPS_API_KEY is not set. Looking up key %q via ADC...", lookup.DisplayName)

	creds, err := google.FindDefaultCredentials(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return "", fmt.Errorf("finding default credentials: %w", err)
	}

	project := firstNonEmpty(lookup.Project, creds.ProjectID, os.Getenv("GOOGLE_CLOUD_PROJECT"))
	if project == "" {
		return "", errors.New("no project for the Maps key: set --google-project or GOOGLE_CLOUD_PROJECT")
	}

	client, err := apikeys.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("creating apikeys client: %w", err)
	}
	defer client.Close()

	key, err := lookupKey(ctx, &cloudKeys{client: client}, project, lookup.DisplayName)
	if err != nil {
		return "", fmt.Errorf("retrieving API key via ADC: %w", err)
	}

	log.Println("✅ Successfully retrieved Google Maps API Key via ADC")

	return key, nil
}

// keySource is the part of the API Keys service the lookup needs.
type keySource interface {
	// Names lists the resource names of the project keys by display name.
	Names(ctx context.Context, project string) (map[string]string, error)
	// Secret returns the key string of a key resource.
	Secret(ctx context.Context, name string) (string, error)
}

func lookupKey(ctx context.Context, source keySource, project, displayName string) (string, error) {
	names, err := source.Names(ctx, project)
	if err != nil {
		return "", err
	}

	name, ok := names[displayName]
	if !ok {
		return "", fmt.Errorf("key with display name %q not found in project %s", displayName, project)
	}

	secret, err := source.Secret(ctx, name)
	if err != nil {
		return "", err
	}

	if secret == "" {
		return "", fmt.Errorf("key %q has an empty key string", displayName)
	}

	return secret, nil
}

type cloudKeys struct {
	client *apikeys.Client
}

func (c *cloudKeys) Names(ctx context.Context, project string) (map[string]string, error) {
	names := map[string]string{}

	it := c.client.ListKeys(ctx, &apikeyspb.ListKeysRequest{
		Parent: fmt.Sprintf("projects/%s/locations/global", project),
	})

	for {
		key, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return names, nil
		}

		if err != nil {
			return nil, fmt.Errorf("listing keys: %w", err)
		}

		if _, seen := names[key.DisplayName]; !seen {
			names[key.DisplayName] = key.Name
		}
	}
}

// Secret asks for the key string, which ListKeys redacts.
func (c *cloudKeys) Secret(ctx context.Context, name string) (string, error) {
	resp, err := c.client.GetKeyString(ctx, &apikeyspb.GetKeyStringRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("getting key string of %s: %w", name, err)
	}

	return resp.KeyString, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
