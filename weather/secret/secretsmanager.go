package secret

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/util/exception"
	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/util/logger"
	weather_entity "github.com/r-carrier/LambdaPostgreSQLWeatherForecast/weather/domain/entity"
)

// GetSecretValueAPI は secretsmanager.Client のうち使用するメソッドだけを切り出したインターフェースです。
type GetSecretValueAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerProvider は AWS Secrets Manager からシークレットを解決します。
type SecretsManagerProvider struct {
	client GetSecretValueAPI
}

// NewSecretsManagerProvider はデフォルトの認証情報チェーン (Lambda の実行ロールなど) でクライアントを作成します。
func NewSecretsManagerProvider(ctx context.Context) (*SecretsManagerProvider, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, exception.NewBatchError(module, exception.KindSecretUnavailable, "AWS 設定のロードに失敗しました", err, false)
	}
	return NewSecretsManagerProviderWithClient(secretsmanager.NewFromConfig(awsCfg)), nil
}

// NewSecretsManagerProviderWithClient は任意のクライアントで SecretsManagerProvider を作成します。
func NewSecretsManagerProviderWithClient(client GetSecretValueAPI) *SecretsManagerProvider {
	return &SecretsManagerProvider{client: client}
}

// Resolve は GetSecretValue を 1 回だけ呼び出し、SecretString を SecretBundle に変換します。
// リトライは行いません。
func (p *SecretsManagerProvider) Resolve(ctx context.Context, name string) (weather_entity.SecretBundle, error) {
	logger.Debugf("Secrets Manager からシークレット '%s' を取得します。", name)

	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return weather_entity.SecretBundle{}, unavailable(name, "シークレットが存在しません", err)
		}
		return weather_entity.SecretBundle{}, unavailable(name, "Secrets Manager からの取得に失敗しました", err)
	}
	if out == nil || out.SecretString == nil {
		return weather_entity.SecretBundle{}, unavailable(name, "SecretString が空です", nil)
	}

	return DecodeBundle(name, []byte(aws.ToString(out.SecretString)))
}

var _ SecretProvider = (*SecretsManagerProvider)(nil)
