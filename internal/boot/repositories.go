package boot

import (
	"osaccount/internal/repository"
	"osaccount/pkg/database"
	"osaccount/pkg/redis"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// Repositories 包含所有仓储实例
type Repositories struct {
	AccountRepo    repository.AccountRepository
	ConstraintRepo repository.ConstraintRepository
	CredentialRepo repository.CredentialRepository
	PhotoRepo      repository.PhotoRepository
	TokenStore     repository.TokenStore
}

// InitRepositories 初始化所有仓储实例，mongodb和redisClient均可为nil
func InitRepositories(db *gorm.DB, mongodb *database.MongoClient, redisClient *redis.Client, clock clockwork.Clock) *Repositories {
	repos := &Repositories{
		AccountRepo:    repository.NewAccountRepository(db),
		ConstraintRepo: repository.NewConstraintRepository(db),
		CredentialRepo: repository.NewCredentialRepository(db),
		PhotoRepo:      repository.NewPhotoRepository(db),
		TokenStore:     repository.NewMemoryTokenStore(clock),
	}
	if mongodb != nil {
		repos.PhotoRepo = repository.NewMongoPhotoRepository(mongodb)
	}
	if redisClient != nil {
		repos.TokenStore = repository.NewRedisTokenStore(redisClient)
	}
	return repos
}
