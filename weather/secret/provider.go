package secret

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"

	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/util/exception"
	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/util/logger"
	weather_config "github.com/r-carrier/LambdaPostgreSQLWeatherForecast/weather/config"
	weather_entity "github.com/r-carrier/LambdaPostgreSQLWeatherForecast/weather/domain/entity"
)

const module = "secret"

// SecretProvider は名前付きのシークレットを SecretBundle として解決します。
// 起動ごとに 1 回だけストアへ問い合わせ、結果はキャッシュしません (シークレットはローテーションされるため)。
type SecretProvider interface {
	Resolve(ctx context.Context, name string) (weather_entity.SecretBundle, error)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// エラーメッセージにはシークレットのキー名を使う
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
	})
	return v
}

// DecodeBundle はシークレットの JSON 文字列を SecretBundle に変換します。
// port は数値と文字列のどちらでも受け付けます。必須キーが欠けている場合は不正な内容として扱います。
func DecodeBundle(name string, raw []byte) (weather_entity.SecretBundle, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return weather_entity.SecretBundle{}, unavailable(name, "シークレットの内容が JSON ではありません", err)
	}

	// デコードに失敗した場合は途中まで埋まった値を返さない
	var bundle weather_entity.SecretBundle
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &bundle,
		TagName:          "mapstructure",
	})
	if err != nil {
		return weather_entity.SecretBundle{}, unavailable(name, "シークレットのデコーダ作成に失敗しました", err)
	}
	if err := decoder.Decode(payload); err != nil {
		return weather_entity.SecretBundle{}, unavailable(name, "シークレットの値の型が不正です", err)
	}

	if err := validate.Struct(bundle); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return weather_entity.SecretBundle{}, unavailable(name, fmt.Sprintf("シークレットに必須キーがありません: %s", strings.Join(fields, ", ")), nil)
		}
		return weather_entity.SecretBundle{}, unavailable(name, "シークレットの検証に失敗しました", err)
	}
	return bundle, nil
}

// unavailable は SecretUnavailable のエラーを作成し、発生元でログ出力します。
func unavailable(name, message string, cause error) error {
	if cause != nil {
		logger.Errorf("シークレット '%s': %s: %v", name, message, cause)
	} else {
		logger.Errorf("シークレット '%s': %s", name, message)
	}
	return exception.NewBatchError(module, exception.KindSecretUnavailable, message, cause, false)
}

// NewSecretProvider は設定に従って SecretProvider を生成します。
func NewSecretProvider(ctx context.Context, cfg weather_config.SecretProviderConfig) (SecretProvider, error) {
	switch strings.ToLower(cfg.Source) {
	case "", "secretsmanager":
		return NewSecretsManagerProvider(ctx)
	case "file":
		return NewFileProvider(cfg.Dir), nil
	default:
		return nil, exception.NewBatchErrorf(module, exception.KindSecretUnavailable, "未対応のシークレットソースです: %s", cfg.Source)
	}
}
