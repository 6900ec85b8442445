// Copyright 2025 SPDX-FileCopyrightText: SAP SE or an SAP affiliate company and Gardener contributors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromStringMapLowersKeys(t *testing.T) {
	p := FromStringMap(map[string]string{"Match": "app.*", "TLS.Verify": "true"})
	assert.Equal(t, "app.*", p.Get("match"))
	assert.Equal(t, "true", p.Get("tls.verify"))
}

func TestGetBoolRejectsGarbage(t *testing.T) {
	p := Properties{"tls.verify": "maybe"}
	_, err := p.GetBool("tls.verify", false)
	require.Error(t, err)
}

func TestParseDestinationShortForm(t *testing.T) {
	d, err := ParseDestination("stdout")
	require.NoError(t, err)
	assert.Equal(t, Destination{Plugin: "stdout"}, d)
}

func TestParseDestinationURLForm(t *testing.T) {
	d, err := ParseDestination("loki://loki.example.com:3100/loki/api/v1/push")
	require.NoError(t, err)
	assert.Equal(t, "loki", d.Plugin)
	assert.Equal(t, "loki.example.com", d.Host)
	assert.Equal(t, "3100", d.Port)
	assert.Equal(t, "/loki/api/v1/push", d.Path)
}
