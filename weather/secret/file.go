package secret

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/util/logger"
	weather_entity "github.com/r-carrier/LambdaPostgreSQLWeatherForecast/weather/domain/entity"
)

// FileProvider は <Dir>/<name>.json からシークレットを読み込みます。
// ローカル実行用で、内容の形式は Secrets Manager の SecretString と同じです。
type FileProvider struct {
	Dir string
}

func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{Dir: dir}
}

func (p *FileProvider) Resolve(ctx context.Context, name string) (weather_entity.SecretBundle, error) {
	if err := ctx.Err(); err != nil {
		return weather_entity.SecretBundle{}, unavailable(name, "シークレットの取得が中断されました", err)
	}

	path := filepath.Join(p.Dir, filepath.Base(name)+".json")
	logger.Debugf("ファイル '%s' からシークレット '%s' を読み込みます。", path, name)

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return weather_entity.SecretBundle{}, unavailable(name, "シークレットが存在しません", err)
		}
		return weather_entity.SecretBundle{}, unavailable(name, "シークレットファイルの読み込みに失敗しました", err)
	}
	return DecodeBundle(name, raw)
}

var _ SecretProvider = (*FileProvider)(nil)
