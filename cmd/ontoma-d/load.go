package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rmax-ai/ontoma/pkg/fetch"
	"github.com/rmax-ai/ontoma/pkg/lookup"
	"github.com/rmax-ai/ontoma/pkg/mapping"
	"github.com/rmax-ai/ontoma/pkg/ontology"
	"github.com/rmax-ai/ontoma/pkg/provider"
	"github.com/rmax-ai/ontoma/pkg/provider/ols"
	"github.com/rmax-ai/ontoma/pkg/provider/oxo"
	"github.com/rmax-ai/ontoma/pkg/provider/zooma"
	"github.com/rmax-ai/ontoma/pkg/resolver"
	rediscache "github.com/rmax-ai/ontoma/pkg/store/redis"
)

// loadIndexes fetches the ontologies and mapping tables concurrently and
// builds the in-memory lookup structures. Empty optional sources are skipped.
func loadIndexes(ctx context.Context, cfg Config, log logrus.FieldLogger) (resolver.Components, error) {
	policy, err := ontology.ParseDuplicatePolicy(cfg.DuplicatePolicy)
	if err != nil {
		return resolver.Components{}, err
	}

	var (
		efo, hp       *ontology.Index
		omim, curated *mapping.Table
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ix, err := loadOntology(gctx, lookup.OntologyEFO, cfg.EFOSource, policy, log)
		efo = ix
		return err
	})
	if cfg.HPSource != "" {
		g.Go(func() error {
			ix, err := loadOntology(gctx, lookup.OntologyHP, cfg.HPSource, policy, log)
			hp = ix
			return err
		})
	}
	if cfg.OMIMSource != "" {
		g.Go(func() error {
			t, err := loadTable(gctx, "omim", cfg.OMIMSource, mapping.OMIMFormat, log)
			omim = t
			return err
		})
	}
	if cfg.CuratedSource != "" {
		g.Go(func() error {
			t, err := loadTable(gctx, "curated", cfg.CuratedSource, mapping.ZoomaFormat, log)
			curated = t
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return resolver.Components{}, err
	}

	indexes := map[lookup.Ontology]*ontology.Index{lookup.OntologyEFO: efo}
	if hp != nil {
		indexes[lookup.OntologyHP] = hp
	}
	return resolver.Components{Indexes: indexes, OMIM: omim, Curated: curated}, nil
}

func loadOntology(ctx context.Context, ont lookup.Ontology, source string, policy ontology.DuplicatePolicy, log logrus.FieldLogger) (*ontology.Index, error) {
	start := time.Now()
	graph, err := ontology.Load(ctx, fetch.DefaultClient, source)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", ont, err)
	}
	ix, err := ontology.BuildIndex(ont, graph, policy)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", ont, err)
	}

	entry := log.WithField("ontology", ont)
	synonymCollisions := 0
	for _, c := range ix.Collisions() {
		if c.Synonym {
			synonymCollisions++
			entry.WithFields(logrus.Fields{"key": c.Key, "ids": c.IDs}).Debug("ambiguous_synonym_dropped")
			continue
		}
		entry.WithFields(logrus.Fields{"key": c.Key, "ids": c.IDs, "kept": c.Kept}).Warn("duplicate_name")
	}
	entry.WithFields(logrus.Fields{
		"terms":              graph.Len(),
		"is_a_edges":         graph.EdgeCount(),
		"names":              ix.Len(),
		"synonyms":           ix.SynonymLen(),
		"synonym_collisions": synonymCollisions,
		"duration_ms":        time.Since(start).Milliseconds(),
	}).Info("ontology_loaded")
	return ix, nil
}

func loadTable(ctx context.Context, name, source string, format mapping.Format, log logrus.FieldLogger) (*mapping.Table, error) {
	start := time.Now()
	t, err := mapping.Load(ctx, fetch.DefaultClient, name, source, format)
	if err != nil {
		return nil, fmt.Errorf("load %s table: %w", name, err)
	}
	log.WithFields(logrus.Fields{
		"table":       name,
		"keys":        t.Len(),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("mapping_table_loaded")
	return t, nil
}

// wireServices attaches the remote service clients, wrapped by the redis
// cache when one is configured. The returned close func releases the cache.
func wireServices(cfg Config, c *resolver.Components, log logrus.FieldLogger) (func() error, error) {
	var fuzzy provider.FuzzyMatcher = ols.NewClient(cfg.OLSURL, cfg.HTTPTimeout, cfg.HTTPRetries)
	var crossRef provider.CrossReferencer = oxo.NewClient(cfg.OxOURL, cfg.HTTPTimeout, cfg.HTTPRetries)
	closer := func() error { return nil }

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		cache := rediscache.NewCache(rdb, cfg.RedisTTL, log.WithField("component", "cache"))
		if cfg.FlushCache {
			n, err := cache.Flush(ctx)
			if err != nil {
				rdb.Close()
				return nil, err
			}
			log.WithField("keys", n).Info("service_cache_flushed")
		}
		fuzzy = cache.Matcher(fuzzy)
		crossRef = cache.CrossReferencer(crossRef)
		closer = rdb.Close
		log.WithFields(logrus.Fields{"addr": cfg.RedisAddr, "ttl": cfg.RedisTTL.String()}).Info("service_cache_enabled")
	}

	c.Fuzzy = fuzzy
	c.CrossRef = crossRef
	if cfg.ZoomaEnabled {
		c.HighConfidence = zooma.NewClient(cfg.ZoomaURL, cfg.HTTPTimeout, cfg.HTTPRetries)
	}
	return closer, nil
}

func resolverOptions(cfg Config, log logrus.FieldLogger) (resolver.Options, error) {
	mode, err := resolver.ParseMode(cfg.Mode)
	if err != nil {
		return resolver.Options{}, err
	}
	opts := resolver.DefaultOptions()
	opts.Mode = mode
	opts.CrossRefDistance = cfg.XrefDistance
	opts.SynonymMatch = cfg.SynonymMatch
	opts.Logger = log.WithField("component", "resolver")
	return opts, nil
}
