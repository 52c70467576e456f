// Package e2e exercises the full library pipeline against a research corpus.
package e2e

import (
	"fmt"

	"github.com/hyperjump/bunken/internal/models"
)

// LiteratureDoc is one corpus entry: a short paper-like abstract. Keyword,
// when set, is a term that appears in this document and nowhere else in the
// corpus, so keyword-fallback queries have exactly one right answer.
type LiteratureDoc struct {
	Title   string
	Content string
	Keyword string
}

// QueryCase pairs a query with the title of the document that must come
// back first for it.
type QueryCase struct {
	Query       string
	WantTitle   string
	Description string
}

// Corpus holds documents and query cases for the end-to-end tests.
// ExactCases query the verbatim abstract, which the deterministic test
// embedder maps to the identical vector, so the target document must rank
// first. KeywordCases query a term unique to one document and drive the
// degraded keyword-fallback path.
type Corpus struct {
	Documents    []LiteratureDoc
	ExactCases   []QueryCase
	KeywordCases []QueryCase
	TotalDocs    int
}

// BuildCorpus returns a corpus of research abstracts across fields, with
// exact-match and keyword query cases derived from it. Contents are single
// lines with no leading or trailing whitespace, so ingestion stores them
// byte-for-byte, and each fits in one chunk at the default chunk size.
func BuildCorpus() *Corpus {
	docs := buildDocuments()
	return &Corpus{
		Documents:    docs,
		ExactCases:   buildExactCases(docs, 24),
		KeywordCases: buildKeywordCases(docs),
		TotalDocs:    len(docs),
	}
}

func buildDocuments() []LiteratureDoc {
	return []LiteratureDoc{
		{
			Title:   "Transfer Learning in Low-Resource Domains",
			Content: "Transfer learning adapts representations trained on a large source corpus to a smaller target task. Freezing early layers while fine-tuning the head preserves general features at low annotation cost.",
		},
		{
			Title:   "Bayesian Optimization for Hyperparameters",
			Content: "Bayesian optimization tunes hyperparameters by modeling the validation objective with a Gaussian process surrogate. Expected improvement balances exploring uncertain regions against exploiting known configurations.",
		},
		{
			Title:   "Few-Shot Prompting Strategies",
			Content: "Few-shot prompting conditions a language model on a handful of worked examples placed directly in the prompt. Example ordering and label balance measurably shift downstream accuracy.",
		},
		{
			Title:   "Retrieval-Augmented Generation",
			Content: "Retrieval-augmented generation grounds model output in passages fetched from an external corpus at inference time. Grounding reduces fabricated claims and lets the knowledge base update without retraining.",
		},
		{
			Title:   "Contrastive Representation Learning",
			Content: "Contrastive objectives pull augmented views of the same instance together while pushing other instances apart. The temperature parameter controls how sharply negatives are repelled.",
		},
		{
			Title:   "Curriculum Learning Schedules",
			Content: "Curriculum schedules order training examples from easy to hard as measured by a difficulty score. Gradual exposure stabilizes optimization on noisy corpora.",
		},
		{
			Title:   "Graph Neural Networks for Molecules",
			Content: "Message passing networks aggregate neighbor features along chemical bonds to predict molecular properties. Readout pooling produces a graph-level embedding for property regression.",
		},
		{
			Title:   "Active Learning Query Selection",
			Content: "Active learning selects the unlabeled examples whose annotation would most improve the model. Uncertainty sampling picks points near the decision boundary to stretch a small labeling budget.",
		},
		{
			Title:   "Federated Learning Under Heterogeneity",
			Content: "Federated training averages client updates without moving raw records off device. Non-identical client distributions cause drift that proximal regularization dampens.",
		},
		{
			Title:   "Speech Recognition for Dialects",
			Content: "End-to-end speech models trained on broadcast audio degrade sharply on regional dialects. Augmenting with synthesized accent variation recovers much of the gap.",
		},
		{
			Title:   "Neural Machine Translation Evaluation",
			Content: "Automatic translation metrics correlate weakly with human judgments on distant language pairs. Ensembling learned metrics with surface overlap improves ranking stability.",
		},
		{
			Title:   "Vision Transformers for Pathology Slides",
			Content: "Self-attention over image patches captures long-range tissue structure in gigapixel pathology slides. Hierarchical tokenization keeps memory use within a single accelerator.",
		},
		{
			Title:   "Reinforcement Learning for Scheduling",
			Content: "Policy gradient agents learn dispatch rules for job shops directly from simulated throughput. Reward shaping with slack penalties shortens tardy queues.",
		},
		{
			Title:   "Anomaly Detection in Telemetry",
			Content: "Reconstruction error from an autoencoder flags telemetry windows that depart from nominal operation. Thresholds calibrated per channel cut the false alarm rate.",
		},
		{
			Title:   "Causal Inference with Observational Data",
			Content: "Inverse propensity weighting corrects for treatment assignment bias in observational studies. Overlap diagnostics reveal strata where the estimate is unidentifiable.",
		},
		{
			Title:   "State Space Models for Forecasting",
			Content: "Structured state space layers model long seasonal dependencies with linear time complexity. Probabilistic heads yield calibrated forecast intervals.",
		},
		{
			Title:   "Genome-Wide CRISPR Screens",
			Content: "Pooled CRISPR screens knock out each gene across millions of cells and read fitness from guide abundance. Essentiality scores replicate well across related cell lines.",
			Keyword: "CRISPR",
		},
		{
			Title:   "Mitochondrial Dysfunction in Aging",
			Content: "Mitochondrial biogenesis declines with age as respiratory chain efficiency falls. Exercise partially restores oxidative capacity in aged muscle.",
			Keyword: "mitochondrial",
		},
		{
			Title:   "Metagenomics of Soil Microbiomes",
			Content: "Shotgun metagenomics recovers genomes of unculturable soil organisms directly from environmental reads. Assembly graphs resolve strain-level variation in nitrogen cyclers.",
			Keyword: "metagenomics",
		},
		{
			Title:   "Organoid Models of Intestinal Disease",
			Content: "Patient-derived organoid cultures recapitulate crypt architecture and drug response in vitro. Biobanked organoid panels enable screening across genetic backgrounds.",
			Keyword: "organoid",
		},
		{
			Title:   "Protein Structure Prediction Accuracy",
			Content: "Deep structure predictors reach near-experimental accuracy on single domains. Flexible loops and multi-chain interfaces remain the dominant error modes.",
		},
		{
			Title:   "Antibiotic Resistance Surveillance",
			Content: "Wastewater sequencing tracks the prevalence of resistance genes across a city in near real time. Early warning precedes clinical isolate reports by weeks.",
		},
		{
			Title:   "Immunotherapy Response Biomarkers",
			Content: "Tumor mutational burden predicts checkpoint inhibitor response only within specific cancer types. Combining burden with immune infiltration signatures sharpens patient selection.",
		},
		{
			Title:   "Single-Cell Transcriptomics of Development",
			Content: "Single-cell sequencing maps lineage decisions as embryonic cells commit to tissue fates. Trajectory inference orders cells along differentiation paths without time-lapse imaging.",
		},
		{
			Title:   "Auxin Signaling in Root Growth",
			Content: "Auxin gradients steer root branching through polar transport between cells. Synthetic reporters visualize the gradient at cellular resolution.",
			Keyword: "auxin",
		},
		{
			Title:   "Vaccine Thermostability Engineering",
			Content: "Lyophilized formulations keep vaccine potency through cold-chain interruptions. Sugar-glass matrices immobilize antigens against thermal denaturation.",
		},
		{
			Title:   "Epigenetic Clocks and Biological Age",
			Content: "Methylation clocks estimate biological age from a few hundred genomic sites. Clock acceleration associates with mortality independent of chronological age.",
		},
		{
			Title:   "Phage Therapy Against Resistant Infections",
			Content: "Lytic phage cocktails clear bacterial infections that no longer respond to antibiotics. Host-range engineering broadens coverage while sparing commensals.",
		},
		{
			Title:   "Permafrost Carbon Feedback",
			Content: "Thawing permafrost releases ancient carbon as microbial activity resumes in warming soils. Abrupt thaw features emit disproportionately relative to their area.",
			Keyword: "permafrost",
		},
		{
			Title:   "Phytoplankton Bloom Dynamics",
			Content: "Satellite ocean color tracks phytoplankton blooms that anchor marine food webs. Bloom timing shifts earlier as stratification strengthens.",
			Keyword: "phytoplankton",
		},
		{
			Title:   "Regional Climate Downscaling",
			Content: "Statistical downscaling maps coarse climate model output onto local terrain. Quantile mapping corrects systematic precipitation bias in mountain catchments.",
		},
		{
			Title:   "Urban Heat Island Mitigation",
			Content: "Street-level sensors resolve temperature contrasts between paved corridors and tree canopy. Targeted greening lowers peak heat exposure where residents are most vulnerable.",
		},
		{
			Title:   "Groundwater Depletion from Satellite Gravimetry",
			Content: "Gravity satellites weigh aquifer loss across basins too large for well networks. Recovery lags recharge by decades in overdrafted regions.",
		},
		{
			Title:   "Wildfire Smoke Transport Modeling",
			Content: "Plume-rise parameterizations determine whether smoke lofts into long-range transport layers. Forecast skill hinges on satellite fire radiative power snapshots.",
		},
		{
			Title:   "Coral Reef Thermal Tolerance",
			Content: "Heat-tolerant coral symbionts raise bleaching thresholds by about one degree. Assisted gene flow trials move tolerance between reef populations.",
		},
		{
			Title:   "Ice Sheet Dynamics and Sea Level",
			Content: "Marine-terminating glaciers accelerate as warm water undercuts their floating shelves. Grounding-line retreat commits centuries of future sea level rise.",
		},
		{
			Title:   "Perovskite Solar Cell Stability",
			Content: "Perovskite photovoltaics reach silicon-level efficiency but degrade under humidity and heat. Encapsulation chemistry now extends operational lifetime past field thresholds.",
			Keyword: "perovskite",
		},
		{
			Title:   "Zeolite Catalysts for Plastic Upcycling",
			Content: "Zeolite pore geometry selects which polymer fragments crack into reusable monomers. Acid site density tunes the product slate toward aromatics.",
			Keyword: "zeolite",
		},
		{
			Title:   "Spintronics for Low-Power Memory",
			Content: "Spintronics stores bits in electron spin orientation rather than charge. Spin-orbit torque switching writes magnetic memory at femtojoule cost.",
			Keyword: "spintronics",
		},
		{
			Title:   "Ferroelectric Thin Films",
			Content: "Ferroelectric polarization switches under modest gate voltages in hafnia films. Wake-up cycling stabilizes remanent polarization for memory endurance.",
			Keyword: "ferroelectric",
		},
		{
			Title:   "Topological Insulator Transport",
			Content: "Surface states of topological insulators conduct without backscattering from non-magnetic impurities. Thickness control separates surface transport from bulk leakage.",
		},
		{
			Title:   "Additive Manufacturing Defect Control",
			Content: "Melt pool monitoring predicts porosity defects during metal printing layer by layer. Closed-loop laser power correction halves scrap rates.",
		},
		{
			Title:   "Solid-State Battery Interfaces",
			Content: "Solid electrolytes promise dense lithium batteries without flammable liquids. Interfacial resistance at the cathode remains the limiting factor for fast charge.",
		},
		{
			Title:   "Quantum Error Correction Overhead",
			Content: "Surface codes trade thousands of physical qubits for each fault-tolerant logical qubit. Decoder latency must stay below the syndrome extraction cycle.",
		},
		{
			Title:   "Metamaterial Acoustic Cloaking",
			Content: "Engineered unit cells bend acoustic wavefronts around objects across a narrow band. Broadband cloaking trades attenuation against shell thickness.",
		},
		{
			Title:   "High-Entropy Alloy Strength",
			Content: "Configurational disorder in multi-element alloys impedes dislocation motion at high temperature. Severe lattice distortion underlies their creep resistance.",
		},
		{
			Title:   "Magnetoencephalography of Language",
			Content: "Magnetoencephalography resolves cortical language responses at millisecond timescales. Source localization separates auditory onset from lexical access stages.",
			Keyword: "magnetoencephalography",
		},
		{
			Title:   "Sleep and Memory Consolidation",
			Content: "Slow-wave sleep replays hippocampal activity patterns from prior learning. Targeted auditory cues during sleep bias which memories strengthen.",
		},
		{
			Title:   "Brain-Computer Interface Decoding",
			Content: "Intracortical arrays decode intended hand movement from motor cortex populations. Recalibration-free decoders track neural drift across months.",
		},
		{
			Title:   "Dopamine and Reward Prediction",
			Content: "Midbrain dopamine neurons fire in proportion to reward prediction errors. Optogenetic stimulation substitutes for reward in conditioning tasks.",
		},
		{
			Title:   "Neuroimaging Reproducibility",
			Content: "Analytic flexibility lets identical imaging data support conflicting conclusions across teams. Preregistered pipelines and multiverse reports restore comparability.",
		},
		{
			Title:   "Exoplanet Atmosphere Spectroscopy",
			Content: "Transit spectroscopy reads exoplanet atmospheres from starlight filtered through their limbs. Water and carbon dioxide features now emerge from single transits.",
			Keyword: "exoplanet",
		},
		{
			Title:   "Gravitational Wave Populations",
			Content: "Merger catalogs constrain how massive binary black holes form and pair. Spin alignment statistics separate cluster capture from isolated evolution.",
		},
		{
			Title:   "Fast Radio Burst Origins",
			Content: "Millisecond radio bursts from distant galaxies repeat with magnetar-like spectra. Dispersion measures turn bursts into probes of intergalactic baryons.",
		},
		{
			Title:   "Galactic Archaeology with Stellar Surveys",
			Content: "Chemical abundances of old stars record the assembly history of the galaxy. Phase-space clustering identifies debris from ancient accretion events.",
		},
		{
			Title:   "Preregistration and Replication",
			Content: "Preregistered protocols separate confirmatory tests from exploratory analysis. Replication rates rise when outcome switching is visible to reviewers.",
		},
		{
			Title:   "Survey Nonresponse Correction",
			Content: "Response propensity weighting corrects survey estimates when participation correlates with the outcome. Auxiliary frame variables bound the remaining bias.",
		},
		{
			Title:   "Agent-Based Epidemic Models",
			Content: "Agent-based simulations capture household and workplace contact structure that compartment models average away. Synthetic populations calibrated to census microdata drive intervention planning.",
		},
		{
			Title:   "Differential Privacy in Census Data",
			Content: "Calibrated noise injection bounds what any release reveals about a single respondent. Privacy budgets force explicit trade-offs between accuracy and disclosure risk.",
		},
		{
			Title:   "Citizen Science Data Quality",
			Content: "Volunteer observations rival instrument networks once systematic observer effects are modeled. Hierarchical calibration borrows strength across participants.",
		},
	}
}

func buildExactCases(docs []LiteratureDoc, n int) []QueryCase {
	if n > len(docs) {
		n = len(docs)
	}
	cases := make([]QueryCase, 0, n)
	for _, d := range docs[:n] {
		cases = append(cases, QueryCase{
			Query:       d.Content,
			WantTitle:   d.Title,
			Description: fmt.Sprintf("verbatim abstract retrieves %q", d.Title),
		})
	}
	return cases
}

func buildKeywordCases(docs []LiteratureDoc) []QueryCase {
	var cases []QueryCase
	for _, d := range docs {
		if d.Keyword == "" {
			continue
		}
		cases = append(cases, QueryCase{
			Query:       d.Keyword,
			WantTitle:   d.Title,
			Description: fmt.Sprintf("keyword %q retrieves %q", d.Keyword, d.Title),
		})
	}
	return cases
}

// ToDocumentInputs converts the corpus documents to inline ingestion inputs.
func (c *Corpus) ToDocumentInputs() []*models.DocumentInput {
	out := make([]*models.DocumentInput, len(c.Documents))
	for i := range c.Documents {
		d := &c.Documents[i]
		out[i] = &models.DocumentInput{
			Title:   d.Title,
			Content: d.Content,
		}
	}
	return out
}
