package pipeline

import (
	"github.com/HMasataka/streamhub/pkg/domain"
	"github.com/HMasataka/streamhub/pkg/errors"
)

// Pipeline runs the compression stage and then the encryption stage, each
// only when the stream configuration enables it.
type Pipeline struct {
	Compressor Stage
	Encryptor  Stage
}

// New creates a pipeline; nil stages become PassThrough
func New(compressor, encryptor Stage) *Pipeline {
	if compressor == nil {
		compressor = PassThrough{}
	}
	if encryptor == nil {
		encryptor = PassThrough{}
	}
	return &Pipeline{Compressor: compressor, Encryptor: encryptor}
}

// Run applies the enabled stages in order. A stage failure that is not
// already a structured error is reported as CompressionFailed or
// EncryptionFailed depending on the stage.
func (p *Pipeline) Run(data domain.StreamData, cfg domain.StreamConfiguration) (domain.StreamData, error) {
	var err error
	if cfg.CompressionEnabled {
		if data, err = p.Compressor.Apply(data); err != nil {
			return data, stageError(err, errors.CompressionFailed)
		}
	}
	if cfg.EncryptionEnabled {
		if data, err = p.Encryptor.Apply(data); err != nil {
			return data, stageError(err, errors.EncryptionFailed)
		}
	}
	return data, nil
}

func stageError(err error, wrap func(error) *errors.Error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	return wrap(err)
}
