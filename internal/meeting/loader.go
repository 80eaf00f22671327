package meeting

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/pmaas/internal/cryptoutil"
	"github.com/keithlinneman/pmaas/internal/log"
	"github.com/keithlinneman/pmaas/internal/xerrors"
)

const (
	// maxListSize bounds a meeting list file or object
	maxListSize int64 = 1 << 20
	// maxSigSize bounds a detached signature object
	maxSigSize int64 = 16 << 10
)

// LoadOptions selects and configures a catalog source.
type LoadOptions struct {
	Source Origin
	// File is the JSON array read when Source is OriginFile
	File string
	S3   S3Options
	// Rand is passed to the catalog, nil keeps math/rand/v2
	Rand Rand
}

// Load builds the catalog from the configured source. Any failure, including
// ErrEmptyCatalog, is meant to stop the process before it listens.
func Load(ctx context.Context, opts LoadOptions) (*Catalog, error) {
	var extra []Option
	if opts.Rand != nil {
		extra = append(extra, WithRand(opts.Rand))
	}
	switch opts.Source {
	case "", OriginBuiltin:
		return LoadBuiltin(extra...)
	case OriginFile:
		return LoadFile(opts.File, extra...)
	case OriginS3:
		l, err := NewS3Loader(ctx, opts.S3)
		if err != nil {
			return nil, err
		}
		return l.Load(ctx, extra...)
	default:
		return nil, xerrors.Newf("unknown meeting source %q", opts.Source)
	}
}

// Parse decodes a JSON array of names. meta.SHA256 is filled from data when unset.
func Parse(data []byte, meta Meta, opts ...Option) (*Catalog, error) {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, xerrors.Wrap(err, "decode meeting list (want a JSON array of strings)")
	}
	if meta.SHA256 == "" {
		meta.SHA256 = cryptoutil.SHA256Hex(data)
	}
	c, err := New(names, append([]Option{WithMeta(meta)}, opts...)...)
	if err != nil {
		return nil, xerrors.WithStack(err)
	}
	return c, nil
}

// LoadBuiltin builds the catalog from DefaultNames.
func LoadBuiltin(opts ...Option) (*Catalog, error) {
	data, err := json.Marshal(DefaultNames)
	if err != nil {
		return nil, xerrors.Wrap(err, "encode builtin meeting list")
	}
	return Parse(data, Meta{Source: OriginBuiltin, Version: "builtin"}, opts...)
}

// LoadFile builds the catalog from a local JSON array.
func LoadFile(path string, opts ...Option) (*Catalog, error) {
	if path == "" {
		return nil, xerrors.New("meeting list path is empty")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Wrapf(err, "open meeting list %s", path)
	}
	defer f.Close()

	data, hash, err := readWithHash(f, maxListSize)
	if err != nil {
		return nil, xerrors.Wrapf(err, "read meeting list %s", path)
	}
	return Parse(data, Meta{Source: OriginFile, Version: filepath.Base(path), SHA256: hash}, opts...)
}

// readWithHash reads up to maxSize bytes from r, hashing as it goes.
func readWithHash(r io.Reader, maxSize int64) ([]byte, string, error) {
	h := sha256.New()
	data, err := io.ReadAll(io.TeeReader(io.LimitReader(r, maxSize+1), h))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > maxSize {
		return nil, "", fmt.Errorf("exceeds max size (limit %d bytes)", maxSize)
	}
	return data, hex.EncodeToString(h.Sum(nil)), nil
}

// ParameterGetter is the subset of the SSM API the loader uses.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ObjectGetter is the subset of the S3 API the loader uses.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// SignatureVerifier checks a detached signature over message.
// *cryptoutil.KMSVerifier satisfies it.
type SignatureVerifier interface {
	VerifySignature(ctx context.Context, message, signature []byte) error
}

type S3Options struct {
	Logger log.Logger

	// SSM parameter holding the sha256 of the active list
	SSMParam string

	// lists live at s3://{Bucket}/{Prefix}/{hash}.json
	Bucket string
	Prefix string

	// SigningKeyARN enables verification of {hash}.json.sig
	SigningKeyARN string

	// AWS config (uses default chain if nil)
	AWSConfig *aws.Config

	// Clients override the ones built from AWSConfig.
	SSM      ParameterGetter
	S3       ObjectGetter
	Verifier SignatureVerifier
}

type S3Loader struct {
	opts     S3Options
	ssm      ParameterGetter
	s3       ObjectGetter
	verifier SignatureVerifier
	logger   log.Logger
}

// NewS3Loader validates opts and builds any AWS client not supplied.
func NewS3Loader(ctx context.Context, opts S3Options) (*S3Loader, error) {
	if opts.SSMParam == "" {
		return nil, xerrors.New("SSMParam is required")
	}
	if opts.Bucket == "" {
		return nil, xerrors.New("Bucket is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}

	l := &S3Loader{
		opts:     opts,
		ssm:      opts.SSM,
		s3:       opts.S3,
		verifier: opts.Verifier,
		logger:   opts.Logger.With("component", "meeting-loader"),
	}

	needKMS := opts.SigningKeyARN != "" && l.verifier == nil
	if l.ssm == nil || l.s3 == nil || needKMS {
		var awsCfg aws.Config
		if opts.AWSConfig != nil {
			awsCfg = *opts.AWSConfig
		} else {
			var err error
			if awsCfg, err = config.LoadDefaultConfig(ctx); err != nil {
				return nil, xerrors.Wrap(err, "load AWS config")
			}
		}
		if l.ssm == nil {
			l.ssm = ssm.NewFromConfig(awsCfg)
		}
		if l.s3 == nil {
			l.s3 = s3.NewFromConfig(awsCfg)
		}
		if needKMS {
			l.verifier = cryptoutil.NewKMSVerifier(kms.NewFromConfig(awsCfg), opts.SigningKeyARN)
		}
	}
	return l, nil
}

// CurrentHash reads the active list hash from SSM.
func (l *S3Loader) CurrentHash(ctx context.Context) (string, error) {
	out, err := l.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(l.opts.SSMParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", l.opts.SSMParam)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", l.opts.SSMParam)
	}
	hash := strings.ToLower(strings.TrimSpace(*out.Parameter.Value))
	if !validHash(hash) {
		return "", xerrors.Newf("SSM parameter %s is not a sha256 hex digest (got %q)", l.opts.SSMParam, hash)
	}
	return hash, nil
}

func validHash(h string) bool {
	if len(h) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(h)
	return err == nil
}

// objectKey returns the S3 key of the list with the given hash.
func (l *S3Loader) objectKey(hash string) string {
	if p := strings.Trim(l.opts.Prefix, "/"); p != "" {
		return p + "/" + hash + ".json"
	}
	return hash + ".json"
}

// Load fetches the list named by SSM.
func (l *S3Loader) Load(ctx context.Context, opts ...Option) (*Catalog, error) {
	hash, err := l.CurrentHash(ctx)
	if err != nil {
		return nil, err
	}
	return l.LoadHash(ctx, hash, opts...)
}

// LoadHash fetches, verifies and parses the list with the given hash.
func (l *S3Loader) LoadHash(ctx context.Context, hash string, opts ...Option) (*Catalog, error) {
	if !validHash(hash) {
		return nil, xerrors.Newf("invalid meeting list hash %q", hash)
	}
	key := l.objectKey(hash)

	l.logger.Info(ctx, "downloading meeting list",
		"bucket", l.opts.Bucket,
		"key", key,
		"expected_hash", hash,
	)

	data, actual, err := l.fetch(ctx, key, maxListSize)
	if err != nil {
		return nil, err
	}
	// hashes are compared in constant time as a matter of policy
	if !cryptoutil.HashEqual(actual, hash) {
		return nil, xerrors.Newf("checksum mismatch for s3://%s/%s: expected %s, got %s", l.opts.Bucket, key, hash, actual)
	}

	if l.verifier != nil {
		raw, _, err := l.fetch(ctx, key+".sig", maxSigSize)
		if err != nil {
			return nil, xerrors.Wrap(err, "fetch meeting list signature")
		}
		if err := l.verifier.VerifySignature(ctx, data, decodeSignature(raw)); err != nil {
			return nil, xerrors.Wrapf(err, "verify signature of s3://%s/%s", l.opts.Bucket, key)
		}
		l.logger.Info(ctx, "meeting list signature verified", "key", key)
	}

	version := hash
	if len(version) > 12 {
		version = version[:12]
	}
	c, err := Parse(data, Meta{
		Source:   OriginS3,
		Version:  version,
		SHA256:   hash,
		LoadedAt: time.Now().UTC(),
	}, opts...)
	if err != nil {
		return nil, xerrors.Wrapf(err, "parse s3://%s/%s", l.opts.Bucket, key)
	}

	l.logger.Info(ctx, "meeting list loaded", "hash", hash, "names", c.Len())
	return c, nil
}

func (l *S3Loader) fetch(ctx context.Context, key string, maxSize int64) ([]byte, string, error) {
	out, err := l.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", xerrors.Wrapf(err, "get S3 object s3://%s/%s", l.opts.Bucket, key)
	}
	defer out.Body.Close()

	data, hash, err := readWithHash(out.Body, maxSize)
	if err != nil {
		return nil, "", xerrors.Wrapf(err, "read s3://%s/%s", l.opts.Bucket, key)
	}
	return data, hash, nil
}

// decodeSignature accepts raw signature bytes or their base64 form, which is
// what `aws kms sign` prints.
func decodeSignature(raw []byte) []byte {
	trimmed := bytes.TrimSpace(raw)
	if dec, err := base64.StdEncoding.DecodeString(string(trimmed)); err == nil && len(dec) > 0 {
		return dec
	}
	return raw
}
