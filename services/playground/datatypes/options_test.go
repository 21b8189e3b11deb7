// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRunOptions_Minimal(t *testing.T) {
	opts, err := DecodeRunOptions([]byte("iter_sampling: 200\niter_warmup: 20\n"))
	require.NoError(t, err)
	assert.Equal(t, 200, *opts.IterSampling)
	assert.Equal(t, 20, *opts.IterWarmup)
	assert.Nil(t, opts.Chains)
	assert.Nil(t, opts.Seed)
	assert.Nil(t, opts.SaveWarmup)
}

func TestDecodeRunOptions_Full(t *testing.T) {
	doc := "iter_sampling: 1000\niter_warmup: 500\nchains: 4\nseed: 42\nsave_warmup: true\n"
	opts, err := DecodeRunOptions([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, 4, *opts.Chains)
	assert.Equal(t, 42, *opts.Seed)
	assert.True(t, *opts.SaveWarmup)
}

func TestDecodeRunOptions_MissingRequired(t *testing.T) {
	_, err := DecodeRunOptions([]byte("chains: 4\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid run options")
}

func TestDecodeRunOptions_NonPositiveIterations(t *testing.T) {
	_, err := DecodeRunOptions([]byte("iter_sampling: 0\niter_warmup: 20\n"))
	assert.Error(t, err)

	_, err = DecodeRunOptions([]byte("iter_sampling: 200\niter_warmup: -5\n"))
	assert.Error(t, err)
}

func TestDecodeRunOptions_MalformedYAML(t *testing.T) {
	_, err := DecodeRunOptions([]byte("iter_sampling: [oops"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed options document")
}

func TestDecodeRunOptions_ZeroChainsRejected(t *testing.T) {
	_, err := DecodeRunOptions([]byte("iter_sampling: 200\niter_warmup: 20\nchains: 0\n"))
	assert.Error(t, err)
}
