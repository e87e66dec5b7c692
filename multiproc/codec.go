package multiproc

import (
	"bytes"
	"errors"
	"io"

	dto "github.com/prometheus/client_model/go"
	"google.golang.org/protobuf/encoding/protodelim"

	"github.com/ceyewan/reqmetrics/xerrors"
)

// encodeFamilies 以长度前缀的 protobuf 依次写入指标族
func encodeFamilies(mfs []*dto.MetricFamily) ([]byte, error) {
	var buf bytes.Buffer
	for _, mf := range mfs {
		if _, err := protodelim.MarshalTo(&buf, mf); err != nil {
			return nil, xerrors.Wrapf(err, "failed to encode metric family %s", mf.GetName())
		}
	}
	return buf.Bytes(), nil
}

func decodeFamilies(data []byte) ([]*dto.MetricFamily, error) {
	r := bytes.NewReader(data)
	var mfs []*dto.MetricFamily
	for {
		mf := &dto.MetricFamily{}
		if err := protodelim.UnmarshalFrom(r, mf); err != nil {
			if errors.Is(err, io.EOF) {
				return mfs, nil
			}
			return nil, xerrors.Wrap(err, "failed to decode snapshot")
		}
		mfs = append(mfs, mf)
	}
}
