// Package config loads the server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/fitmind/voicecoach/internal/voice"
)

// Store backends
const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"
)

type Config struct {
	Server struct {
		Port            string
		LogLevel        string
		LogFormat       string
		ShutdownTimeout time.Duration
	}
	Gemini struct {
		APIKey string
		Model  string
	}
	Auth struct {
		JWTSecret string
		TokenTTL  time.Duration
	}
	Store struct {
		Backend         string
		MongoURI        string
		MongoDatabase   string
		CleanupInterval time.Duration
	}
	Voice struct {
		FrameSize         int
		InputGain         float64
		VolumeScale       float64
		VolumeCeiling     float64
		SpeakingThreshold float64
		SendQueue         int
		HandshakeTimeout  time.Duration
	}
}

func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("gemini.model", voice.DefaultModel)

	v.SetDefault("auth.token_ttl", "168h")

	v.SetDefault("store.backend", StoreMemory)
	v.SetDefault("store.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo_database", "voicecoach")
	v.SetDefault("store.cleanup_interval", "30m")

	d := voice.DefaultOptions()
	v.SetDefault("voice.frame_size", d.FrameSize)
	v.SetDefault("voice.input_gain", d.InputGain)
	v.SetDefault("voice.volume_scale", d.VolumeScale)
	v.SetDefault("voice.volume_ceiling", d.VolumeCeiling)
	v.SetDefault("voice.speaking_threshold", d.SpeakingThreshold)
	v.SetDefault("voice.send_queue", d.SendQueue)
	v.SetDefault("voice.handshake_timeout", d.HandshakeTimeout.String())

	// Map envs
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.log_level", "LOG_LEVEL")
	v.BindEnv("server.log_format", "LOG_FORMAT")
	v.BindEnv("server.shutdown_timeout", "SHUTDOWN_TIMEOUT")

	v.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	v.BindEnv("gemini.model", "GEMINI_LIVE_MODEL")

	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("auth.token_ttl", "JWT_TOKEN_TTL")

	v.BindEnv("store.backend", "STORE_BACKEND")
	v.BindEnv("store.mongo_uri", "MONGODB_URI")
	v.BindEnv("store.mongo_database", "MONGODB_DATABASE")
	v.BindEnv("store.cleanup_interval", "CONVERSATION_CLEANUP_INTERVAL")

	v.BindEnv("voice.frame_size", "VOICE_FRAME_SIZE")
	v.BindEnv("voice.input_gain", "VOICE_INPUT_GAIN")
	v.BindEnv("voice.volume_scale", "VOICE_VOLUME_SCALE")
	v.BindEnv("voice.volume_ceiling", "VOICE_VOLUME_CEILING")
	v.BindEnv("voice.speaking_threshold", "VOICE_SPEAKING_THRESHOLD")
	v.BindEnv("voice.send_queue", "VOICE_SEND_QUEUE")
	v.BindEnv("voice.handshake_timeout", "VOICE_HANDSHAKE_TIMEOUT")

	var c Config
	c.Server.Port = fmt.Sprint(v.Get("server.port"))
	c.Server.LogLevel = v.GetString("server.log_level")
	c.Server.LogFormat = v.GetString("server.log_format")
	c.Server.ShutdownTimeout = v.GetDuration("server.shutdown_timeout")

	c.Gemini.APIKey = v.GetString("gemini.api_key")
	c.Gemini.Model = v.GetString("gemini.model")

	c.Auth.JWTSecret = v.GetString("auth.jwt_secret")
	c.Auth.TokenTTL = v.GetDuration("auth.token_ttl")

	c.Store.Backend = strings.ToLower(v.GetString("store.backend"))
	c.Store.MongoURI = v.GetString("store.mongo_uri")
	c.Store.MongoDatabase = v.GetString("store.mongo_database")
	c.Store.CleanupInterval = v.GetDuration("store.cleanup_interval")

	c.Voice.FrameSize = v.GetInt("voice.frame_size")
	c.Voice.InputGain = v.GetFloat64("voice.input_gain")
	c.Voice.VolumeScale = v.GetFloat64("voice.volume_scale")
	c.Voice.VolumeCeiling = v.GetFloat64("voice.volume_ceiling")
	c.Voice.SpeakingThreshold = v.GetFloat64("voice.speaking_threshold")
	c.Voice.SendQueue = v.GetInt("voice.send_queue")
	c.Voice.HandshakeTimeout = v.GetDuration("voice.handshake_timeout")

	return c
}

// Validate reports every setting the server cannot start without
func (c Config) Validate() error {
	var err error
	if c.Gemini.APIKey == "" {
		err = multierr.Append(err, errors.New("GEMINI_API_KEY is required"))
	}
	if c.Auth.JWTSecret == "" {
		err = multierr.Append(err, errors.New("JWT_SECRET is required"))
	}
	switch c.Store.Backend {
	case StoreMemory:
	case StoreMongo:
		if c.Store.MongoURI == "" {
			err = multierr.Append(err, errors.New("MONGODB_URI is required for the mongo store"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend))
	}
	if c.Voice.FrameSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("VOICE_FRAME_SIZE must be positive, got %d", c.Voice.FrameSize))
	}
	return err
}

// VoiceOptions maps the voice settings onto the session manager tuning
func (c Config) VoiceOptions() voice.Options {
	opts := voice.DefaultOptions()
	opts.Model = c.Gemini.Model
	opts.FrameSize = c.Voice.FrameSize
	opts.InputGain = float32(c.Voice.InputGain)
	opts.VolumeScale = c.Voice.VolumeScale
	opts.VolumeCeiling = c.Voice.VolumeCeiling
	opts.SpeakingThreshold = c.Voice.SpeakingThreshold
	opts.SendQueue = c.Voice.SendQueue
	opts.HandshakeTimeout = c.Voice.HandshakeTimeout
	return opts
}
