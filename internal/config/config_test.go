package config

import "testing"

func TestApplyDefaults(t *testing.T) {
	c := &Config{}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		t.Fatalf("default config failed validation: %v", err)
	}
	if c.ChunkSize != 1000 || c.ChunkOverlap != 200 {
		t.Fatalf("unexpected chunk defaults: size=%d overlap=%d", c.ChunkSize, c.ChunkOverlap)
	}
	if c.HybridVectorWeight != 0.7 || c.HybridTextWeight != 0.3 {
		t.Fatalf("unexpected hybrid weight defaults: %v/%v", c.HybridVectorWeight, c.HybridTextWeight)
	}
}

func TestValidateRejectsBadChunkSize(t *testing.T) {
	c := &Config{}
	c.ApplyDefaults()
	c.ChunkSize = 50
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error for chunk_size below 100")
	}
}

func TestValidateRejectsOverlapTooLarge(t *testing.T) {
	c := &Config{}
	c.ApplyDefaults()
	c.ChunkOverlap = c.ChunkSize
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error when overlap >= chunk size")
	}
}

func TestValidateRejectsZeroBatchSize(t *testing.T) {
	c := &Config{}
	c.ApplyDefaults()
	c.EmbeddingBatchSize = 0
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error for embedding_batch_size 0")
	}
}
