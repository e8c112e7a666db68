package fieldconfig

import (
	"fmt"
	"reflect"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/v2"

	"github.com/shahcompbio/montage-sub000/pkg/model"
)

var (
	esidType   = reflect.TypeOf(model.ESID{})
	optionType = reflect.TypeOf(model.Option{})
)

// decodeHook turns the compact catalog notations into typed values:
// esid as a string or a [pattern, {esid, range}...] list, and select
// options as [value, shortLabel, label, default, ...] tuples.
func decodeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	switch to {
	case esidType:
		return decodeESID(data)
	case optionType:
		if tuple, ok := data.([]any); ok {
			return decodeOption(tuple), nil
		}
	}
	return data, nil
}

func decodeESID(data any) (any, error) {
	switch v := data.(type) {
	case nil:
		return model.ESID{}, nil
	case string:
		return model.ESID{Set: true, Name: v}, nil
	case []any:
		e := model.ESID{Set: true}
		for i, item := range v {
			switch part := item.(type) {
			case string:
				if i != 0 {
					return nil, fmt.Errorf("esid pattern %q must be the first element", part)
				}
				e.Pattern = part
			case map[string]any:
				p := model.ESIDPart{}
				if s, ok := part["esid"].(string); ok {
					p.ESID = s
				}
				if s, ok := part["range"].(string); ok {
					p.Range = s
				}
				e.Parts = append(e.Parts, p)
			default:
				return nil, fmt.Errorf("unsupported esid element %T", item)
			}
		}
		return e, nil
	}
	return data, nil
}

func decodeOption(tuple []any) model.Option {
	str := func(i int) string {
		if i >= len(tuple) || tuple[i] == nil {
			return ""
		}
		return fmt.Sprint(tuple[i])
	}
	opt := model.Option{
		Value:      str(0),
		ShortLabel: str(1),
		Label:      str(2),
	}
	if len(tuple) > 3 {
		if b, ok := tuple[3].(bool); ok {
			opt.Default = b
		}
	}
	return opt
}

// unmarshal decodes the value at path into out using the catalog hooks.
func unmarshal(k *koanf.Koanf, path string, out any) error {
	return k.UnmarshalWithConf(path, out, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				decodeHook,
				mapstructure.StringToTimeDurationHookFunc(),
			),
			Result:           out,
			WeaklyTypedInput: true,
			TagName:          "koanf",
		},
	})
}
