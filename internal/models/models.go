package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Enums
type DocumentStatus string

const (
	DocumentStatusPending   DocumentStatus = "pending"
	DocumentStatusCompleted DocumentStatus = "completed"
	DocumentStatusFailed    DocumentStatus = "failed"
)

type PodcastStatus string

const (
	PodcastStatusGenerating PodcastStatus = "generating"
	PodcastStatusCompleted  PodcastStatus = "completed"
	PodcastStatusFailed     PodcastStatus = "failed"
)

type ConversionStatus string

const (
	ConversionStatusNone       ConversionStatus = "none"
	ConversionStatusProcessing ConversionStatus = "processing"
	ConversionStatusCompleted  ConversionStatus = "completed"
	ConversionStatusFailed     ConversionStatus = "failed"
)

type VoiceStatus string

const (
	VoiceStatusUploaded   VoiceStatus = "uploaded"
	VoiceStatusProcessing VoiceStatus = "processing"
	VoiceStatusReady      VoiceStatus = "ready"
	VoiceStatusFailed     VoiceStatus = "failed"
)

// StorageType names the backend that actually holds a blob. It is recorded per
// entity at write time because uploads can fail over to another backend.
type StorageType string

const (
	StorageLocal    StorageType = "local"
	StorageBucket   StorageType = "bucket"
	StorageDatabase StorageType = "database"
	StorageBrowser  StorageType = "browser" // no file: the client synthesizes speech itself
)

// Voice provider tags stored on CustomVoice.
const (
	VoiceProviderElevenLabs = "elevenlabs"
	VoiceProviderRVC        = "rvc"
)

// BlobRef locates a stored binary artifact.
type BlobRef struct {
	Storage StorageType `json:"storage_type"`
	Key     string      `json:"key,omitempty"`
	URL     string      `json:"url,omitempty"`
}

// IsZero reports whether the reference points nowhere.
func (r BlobRef) IsZero() bool {
	return r.Storage == "" && r.Key == "" && r.URL == ""
}

// BlobMeta describes a file held by the database-attached backend.
type BlobMeta struct {
	Filename    string
	ContentType string
	Length      int64
	ChunkSize   int
	ChunkCount  int
}

// Models

type Document struct {
	ID               uuid.UUID      `json:"id"`
	UserID           uuid.UUID      `json:"user_id"`
	Title            string         `json:"title"`
	OriginalName     string         `json:"original_name"`
	FileType         string         `json:"file_type"` // "pdf", "docx", "txt"
	FileSize         int64          `json:"file_size"`
	File             BlobRef        `json:"file"`
	ExtractedText    string         `json:"extracted_text,omitempty"`
	WordCount        int            `json:"word_count"`
	ProcessingStatus DocumentStatus `json:"processing_status"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

type Summary struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	DocumentID uuid.UUID `json:"document_id"`
	Title      string    `json:"title"`
	Style      string    `json:"style"` // "brief", "detailed", "podcast"
	Content    string    `json:"content"`
	WordCount  int       `json:"word_count"`
	Provider   string    `json:"provider"` // summarizer that produced the content
	CreatedAt  time.Time `json:"created_at"`
}

type Podcast struct {
	ID               uuid.UUID        `json:"id"`
	UserID           uuid.UUID        `json:"user_id"`
	DocumentID       uuid.UUID        `json:"document_id"`
	SummaryID        *uuid.UUID       `json:"summary_id,omitempty"`
	Title            string           `json:"title"`
	Status           PodcastStatus    `json:"processing_status"`
	Progress         int              `json:"progress"` // advisory 0-100
	ErrorMessage     *string          `json:"error_message,omitempty"`
	Provider         string           `json:"provider"`
	VoiceID          string           `json:"voice_id"`
	Language         string           `json:"language"`
	Audio            BlobRef          `json:"audio"`
	AudioFormat      string           `json:"audio_format,omitempty"`
	DurationMs       int              `json:"duration_ms"`
	SizeBytes        int64            `json:"size_bytes"`
	ConversionStatus ConversionStatus `json:"conversion_status"`
	ConversionError  *string          `json:"conversion_error,omitempty"`
	ConvertedAudio   BlobRef          `json:"converted_audio"`
	ConvertedVoiceID *uuid.UUID       `json:"converted_voice_id,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// HasConvertedAudio reports whether the voice-converted variant is usable.
func (p *Podcast) HasConvertedAudio() bool {
	return p.Status == PodcastStatusCompleted &&
		p.ConversionStatus == ConversionStatusCompleted &&
		p.ConvertedAudio.URL != ""
}

type CustomVoice struct {
	ID              uuid.UUID      `json:"id"`
	UserID          uuid.UUID      `json:"user_id"`
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	Sample          BlobRef        `json:"sample"`
	SampleFileName  string         `json:"sample_file_name"`
	SampleSize      int64          `json:"sample_size"`
	DurationSec     float64        `json:"duration_sec"`
	Format          string         `json:"format"` // "mp3", "wav", "ogg", "m4a"
	Status          VoiceStatus    `json:"status"`
	ProcessingError *string        `json:"processing_error,omitempty"`
	Provider        string         `json:"provider"`
	ExternalVoiceID *string        `json:"external_voice_id,omitempty"`
	Gender          string         `json:"gender"` // "male", "female", "neutral", "unknown"
	Language        string         `json:"language"`
	Accent          string         `json:"accent"`
	Tags            pq.StringArray `json:"tags"`
	TimesUsed       int            `json:"times_used"`
	LastUsedAt      *time.Time     `json:"last_used_at,omitempty"`
	IsDefault       bool           `json:"is_default"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// VoiceUpdate is a partial update of the mutable CustomVoice fields; nil means unchanged.
type VoiceUpdate struct {
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	Gender      *string   `json:"gender,omitempty"`
	Language    *string   `json:"language,omitempty"`
	Accent      *string   `json:"accent,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
	IsDefault   *bool     `json:"is_default,omitempty"`
}

// PodcastAudio is what a finished synthesis writes onto a Podcast.
type PodcastAudio struct {
	Audio      BlobRef
	Format     string
	DurationMs int
	SizeBytes  int64
}

// DTOs for API requests and responses

type CreatePodcastRequest struct {
	DocumentID uuid.UUID  `json:"document_id"`
	SummaryID  *uuid.UUID `json:"summary_id,omitempty"`
	Title      string     `json:"title,omitempty"`
	Provider   string     `json:"provider,omitempty"` // Default: "google"
	VoiceID    string     `json:"voice_id,omitempty"`
	Language   string     `json:"language,omitempty"` // Default: "en-US"
}

type ConvertPodcastRequest struct {
	VoiceID uuid.UUID `json:"voice_id"`
}

type CreateSummaryRequest struct {
	Style string `json:"style,omitempty"` // Default: "podcast"
}

type PodcastStatusResponse struct {
	ID               uuid.UUID        `json:"id"`
	Status           PodcastStatus    `json:"processing_status"`
	Progress         int              `json:"progress"`
	ErrorMessage     *string          `json:"error_message,omitempty"`
	ConversionStatus ConversionStatus `json:"conversion_status"`
	ConversionError  *string          `json:"conversion_error,omitempty"`
}
